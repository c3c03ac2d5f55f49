//go:build linux

package armcap

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// probeUnmasked stay deliverable while the probe runs so a fault or a
// debugger trap cannot wedge the child.
var probeUnmasked = []syscall.Signal{
	unix.SIGILL,
	unix.SIGTRAP,
	unix.SIGFPE,
	unix.SIGBUS,
	unix.SIGSEGV,
}

// maskSignals blocks every other signal on the calling thread, which must
// be locked. restore reinstates the previous mask.
func maskSignals() (restore func(), err error) {
	var set, old unix.Sigset_t
	for i := range set.Val {
		set.Val[i] = ^set.Val[i]
	}
	for _, sig := range probeUnmasked {
		sigdel(&set, sig)
	}

	if err := unix.PthreadSigmask(unix.SIG_SETMASK, &set, &old); err != nil {
		return nil, fmt.Errorf("set probe signal mask: %w", err)
	}
	return func() {
		_ = unix.PthreadSigmask(unix.SIG_SETMASK, &old, nil)
	}, nil
}

func sigdel(set *unix.Sigset_t, sig syscall.Signal) {
	bits := uint(unsafe.Sizeof(set.Val[0])) * 8
	n := uint(sig) - 1
	set.Val[n/bits] &^= 1 << (n % bits)
}
