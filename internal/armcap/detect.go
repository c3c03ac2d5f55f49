package armcap

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// EnvOverride names the environment variable whose value, when it parses as
// an unsigned integer, replaces detection entirely.
const EnvOverride = "OPENSSL_armcap"

// AArch64 reports the RNG feature in AT_HWCAP2 rather than AT_HWCAP.
const (
	atHWCap2  = 26
	hwcap2RNG = 1 << 16
)

// Detector determines the capability flag exactly once.
//
// The zero value is usable and detects against the running process. Fields
// exist so tests can substitute the environment, the auxiliary vector and
// the fallback probe; they must not be changed after the first Detect.
type Detector struct {
	// LookupEnv reads the override variable. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)

	// HWCap returns AT_HWCAP2 and whether the auxiliary vector could be
	// read at all. Defaults to ReadHWCap2.
	HWCap func() (uint64, bool)

	// Prober is used only when HWCap reports the vector unavailable.
	// Defaults to an ExecProber re-running the current executable.
	Prober Prober

	// Arch is the GOARCH detection runs for. Defaults to runtime.GOARCH.
	Arch string

	// Logger receives detection diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	once   sync.Once
	caps   Caps
	method Method
	probes atomic.Int64
}

// NewDetector returns a detector bound to the running process.
func NewDetector(logger *slog.Logger) *Detector {
	return &Detector{Logger: logger}
}

// Detect returns the capability flag, running detection on the first call.
// It is safe for concurrent use.
func (d *Detector) Detect() Caps {
	d.once.Do(d.detect)
	return d.caps
}

// Method returns the tier that produced the flag, running detection if it
// has not happened yet.
func (d *Detector) Method() Method {
	d.once.Do(d.detect)
	return d.method
}

// Probes returns how many times the fallback probe has been executed.
func (d *Detector) Probes() int64 {
	return d.probes.Load()
}

func (d *Detector) detect() {
	log := d.logger()

	if v, ok := d.lookupEnv(EnvOverride); ok && v != "" {
		caps, err := ParseOverride(v)
		if err == nil {
			d.caps, d.method = caps, MethodOverride
			log.Debug("capability override applied", "env", EnvOverride, "caps", caps)
			return
		}
		log.Debug("ignoring capability override", "env", EnvOverride, "value", v, "error", err)
	}

	arch := d.Arch
	if arch == "" {
		arch = runtime.GOARCH
	}
	if arch != "arm64" {
		d.method = MethodUnsupported
		log.Debug("hardware RNG not defined for architecture", "arch", arch)
		return
	}

	hwcap := d.HWCap
	if hwcap == nil {
		hwcap = ReadHWCap2
	}
	if v, ok := hwcap(); ok {
		d.method = MethodHWCap
		if v&hwcap2RNG != 0 {
			d.caps |= RNG
		}
		log.Debug("capability read from auxiliary vector", "hwcap2", fmt.Sprintf("%#x", v), "caps", d.caps)
		return
	}

	// A probe child must never spawn another probe child.
	if os.Getenv(EnvProbeChild) != "" {
		d.method = MethodNone
		return
	}

	d.method = MethodProbe
	prober := d.Prober
	if prober == nil {
		prober = &ExecProber{Logger: log}
	}
	d.probes.Add(1)
	outcome := prober.Probe()
	switch outcome {
	case OutcomeSucceeded:
		d.caps |= RNG
	case OutcomeNotAttempted:
		log.Warn("hardware RNG probe could not run, assuming absent")
	}
	log.Debug("capability probed", "outcome", outcome, "caps", d.caps)
}

func (d *Detector) lookupEnv(key string) (string, bool) {
	if d.LookupEnv != nil {
		return d.LookupEnv(key)
	}
	return os.LookupEnv(key)
}

func (d *Detector) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// ParseOverride parses an override value as an unsigned 32-bit integer in
// any base, honouring 0x, 0o, 0b and leading-zero octal prefixes.
func ParseOverride(v string) (Caps, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("armcap: parse %s: %w", EnvOverride, err)
	}
	return Caps(n), nil
}

var std = &Detector{}

// Default returns the process-wide detector.
func Default() *Detector { return std }

// Detect returns the process-wide capability flag.
func Detect() Caps { return std.Detect() }

// Has reports whether the process-wide flag contains want.
func Has(want Caps) bool { return std.Detect().Has(want) }

// DetectionMethod returns the tier that produced the process-wide flag.
func DetectionMethod() Method { return std.Method() }
