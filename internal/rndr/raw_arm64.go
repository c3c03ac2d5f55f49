package rndr

// rndr reads the RNDR register. ok is false when the hardware declined.
//
//go:noescape
func rndr() (v uint64, ok bool)

// rndrrs reads the RNDRRS register. ok is false when the hardware declined.
//
//go:noescape
func rndrrs() (v uint64, ok bool)
