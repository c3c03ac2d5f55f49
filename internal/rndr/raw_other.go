//go:build !arm64

package rndr

func rndr() (uint64, bool) { return 0, false }

func rndrrs() (uint64, bool) { return 0, false }
