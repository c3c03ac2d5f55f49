//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris || zos

package armcap

import "golang.org/x/sys/unix"

// ReadHWCap2 returns the AT_HWCAP2 entry of the process auxiliary vector.
// The second result is false when the runtime exposes no vector at all, in
// which case the caller has to probe. A readable vector without an
// AT_HWCAP2 entry reports zero.
func ReadHWCap2() (uint64, bool) {
	vec, err := unix.Auxv()
	if err != nil {
		return 0, false
	}
	for _, kv := range vec {
		if kv[0] == atHWCap2 {
			return uint64(kv[1]), true
		}
	}
	return 0, true
}
