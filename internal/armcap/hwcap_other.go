//go:build !(aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris || zos)

package armcap

// ReadHWCap2 always reports the auxiliary vector unavailable.
func ReadHWCap2() (uint64, bool) {
	return 0, false
}
