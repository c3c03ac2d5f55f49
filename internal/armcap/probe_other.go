//go:build !arm64

package armcap

func rngProbe() {
	panic("armcap: RNDR probe executed on a non-arm64 build")
}
