package armcap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"
)

// EnvProbeChild marks a process started by ExecProber.
const EnvProbeChild = "ARMRNG_PROBE_CHILD"

// DefaultProbeTimeout bounds how long a probe child may run.
const DefaultProbeTimeout = 5 * time.Second

const probeOKMarker = "armrng-probe-ok"

// Outcome is the result of attempting the RNG instruction once.
type Outcome int

const (
	OutcomeNotAttempted Outcome = iota
	OutcomeSucceeded
	OutcomeTrapped
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeTrapped:
		return "trapped"
	default:
		return "not-attempted"
	}
}

// Prober attempts the RNG instruction in isolation.
//
// A trapped instruction is a normal negative result, so implementations
// report it as an Outcome rather than an error.
type Prober interface {
	Probe() Outcome
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func() Outcome

// Probe calls f.
func (f ProberFunc) Probe() Outcome { return f() }

// ExecProber runs the instruction in a re-executed copy of a binary.
//
// A synchronous SIGILL cannot be recovered inside a Go process, so the
// isolated region is a whole child process. The binary must call
// ProbeChild at the top of main.
type ExecProber struct {
	// Path is the binary to execute. Defaults to os.Executable.
	Path string

	// Env is appended to the inherited environment of the child.
	Env []string

	// Timeout defaults to DefaultProbeTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Probe starts the child and classifies how it exited.
func (p *ExecProber) Probe() Outcome {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	path := p.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			log.Warn("locate executable for RNG probe", "error", err)
			return OutcomeNotAttempted
		}
		path = exe
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path)
	cmd.Env = append(os.Environ(), EnvProbeChild+"=1")
	cmd.Env = append(cmd.Env, p.Env...)
	cmd.Stdin = nil
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		log.Warn("start RNG probe child", "path", path, "error", err)
		return OutcomeNotAttempted
	}
	err := cmd.Wait()
	if ctx.Err() != nil {
		log.Warn("RNG probe child timed out", "path", path, "timeout", timeout)
		return OutcomeNotAttempted
	}

	outcome, reason := classifyProbe(err, stdout.Bytes(), stderr.Bytes())
	log.Debug("RNG probe child exited", "pid", cmd.Process.Pid, "outcome", outcome, "reason", reason)
	return outcome
}

// classifyProbe maps the child's exit to an outcome. Any exit other than a
// clean one with the success marker means the instruction is unusable.
func classifyProbe(waitErr error, stdout, stderr []byte) (Outcome, string) {
	if waitErr == nil {
		if bytes.Contains(stdout, []byte(probeOKMarker)) {
			return OutcomeSucceeded, "ok"
		}
		return OutcomeTrapped, "missing marker"
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGILL {
			return OutcomeTrapped, "killed by SIGILL"
		}
		if bytes.Contains(stderr, []byte("SIGILL")) {
			return OutcomeTrapped, "runtime reported SIGILL"
		}
		return OutcomeTrapped, fmt.Sprintf("exit status %d", exitErr.ExitCode())
	}
	return OutcomeTrapped, waitErr.Error()
}

// probeInstruction is replaced in tests to simulate either result.
var probeInstruction = rngProbe

// ProbeChild runs the isolated probe when the process was started by
// ExecProber and reports false otherwise. In a probe child it exits the
// process and does not return.
func ProbeChild() bool {
	if os.Getenv(EnvProbeChild) != "1" {
		return false
	}
	os.Exit(runProbeChild(os.Stdout, os.Stderr, probeInstruction))
	return true
}

// runProbeChild executes instr with all signals masked except those the
// instruction may raise: SIGILL, SIGTRAP, SIGFPE, SIGBUS and SIGSEGV.
func runProbeChild(stdout, stderr io.Writer, instr func()) int {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	restore, err := maskSignals()
	if err != nil {
		fmt.Fprintf(stderr, "armcap: %v\n", err)
		return 3
	}
	defer restore()

	instr()

	fmt.Fprintln(stdout, probeOKMarker)
	return 0
}
