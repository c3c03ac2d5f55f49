//go:build !linux

package armcap

// maskSignals is a no-op where the thread signal mask is not exposed; the
// probe child still isolates the trap from the parent.
func maskSignals() (restore func(), err error) {
	return func() {}, nil
}
