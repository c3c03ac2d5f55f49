// Package rndr samples random bytes from the Arm RNDR and RNDRRS
// instructions.
//
// The instructions may decline to produce a value, which is documented
// behaviour rather than a fault. Sampler absorbs a bounded number of
// declines; a short result after the budget is spent is returned as a byte
// count and left to the caller to judge.
package rndr

import (
	"encoding/binary"

	"armrng/internal/armcap"
)

// Source is a fallible producer of random bytes. Fill writes up to
// len(buf) bytes and returns how many it wrote; a short count is a
// transient decline.
type Source interface {
	Fill(buf []byte) int
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(buf []byte) int

// Fill calls f.
func (f SourceFunc) Fill(buf []byte) int { return f(buf) }

// hwSource fills from one of the RNG system registers.
type hwSource struct {
	name string
	read func() (uint64, bool)
}

var (
	// RNDR reads the RNDR register, which returns output of a DRBG that
	// the hardware reseeds periodically. This is the fast source.
	RNDR Source = &hwSource{name: "RNDR", read: rndr}

	// RNDRRS reads the RNDRRS register, which reseeds before every read.
	// This is the direct source and declines far more often under load.
	RNDRRS Source = &hwSource{name: "RNDRRS", read: rndrrs}
)

// Fill writes eight bytes per successful register read and stops at the
// first decline. Without the RNG capability it writes nothing.
func (s *hwSource) Fill(buf []byte) int {
	if !s.Available() {
		return 0
	}
	return fillWords(buf, s.read)
}

// Available reports whether the register may be read on this machine.
func (s *hwSource) Available() bool {
	return armcap.Has(armcap.RNG)
}

// String returns the register name.
func (s *hwSource) String() string { return s.name }

func fillWords(buf []byte, read func() (uint64, bool)) int {
	var word [8]byte
	n := 0
	for n < len(buf) {
		v, ok := read()
		if !ok {
			break
		}
		binary.LittleEndian.PutUint64(word[:], v)
		n += copy(buf[n:], word[:])
	}
	return n
}
