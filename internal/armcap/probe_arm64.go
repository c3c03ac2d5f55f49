package armcap

// rngProbe executes a single MRS of the RNDR register and discards the
// result. It traps with SIGILL on cores without FEAT_RNG.
//
//go:noescape
func rngProbe()
