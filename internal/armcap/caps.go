// Package armcap detects Arm CPU capabilities relevant to hardware random
// number generation.
//
// Detection happens once per process. The result is a small bitset whose
// layout matches the capability word used by OpenSSL-derived libraries, so
// an OPENSSL_armcap override copied from such an environment means the same
// thing here. Only the RNG bit is examined; all other bits are carried
// through untouched.
package armcap

import (
	"fmt"
	"strings"
)

// Caps is the process-wide capability bitset.
type Caps uint32

// RNG reports that the RNDR and RNDRRS instructions are usable.
const RNG Caps = 1 << 8

// Has reports whether every bit in want is set.
func (c Caps) Has(want Caps) bool {
	return c&want == want
}

// String returns a human-readable form such as "0x100 (rng)".
func (c Caps) String() string {
	var names []string
	if c.Has(RNG) {
		names = append(names, "rng")
	}
	if other := c &^ RNG; other != 0 {
		names = append(names, fmt.Sprintf("other=%#x", uint32(other)))
	}
	if len(names) == 0 {
		return fmt.Sprintf("%#x (none)", uint32(c))
	}
	return fmt.Sprintf("%#x (%s)", uint32(c), strings.Join(names, ","))
}

// Method records which detection tier produced the capability flag.
type Method int

const (
	MethodNone Method = iota
	MethodOverride
	MethodHWCap
	MethodProbe
	MethodUnsupported
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodOverride:
		return "override"
	case MethodHWCap:
		return "hwcap"
	case MethodProbe:
		return "probe"
	case MethodUnsupported:
		return "unsupported"
	default:
		return "none"
	}
}
