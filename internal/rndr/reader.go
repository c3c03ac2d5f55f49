package rndr

import (
	"errors"
	"fmt"
)

var (
	ErrShortRead     = errors.New("rndr: hardware RNG returned fewer bytes than requested")
	ErrInvalidLength = errors.New("rndr: invalid length")
)

// Reader presents a Sampler as an io.Reader for consumers that need full
// buffers. A shortfall the sampler could not absorb becomes ErrShortRead.
type Reader struct {
	sampler *Sampler
}

// NewReader returns a Reader over s.
func NewReader(s *Sampler) *Reader {
	return &Reader{sampler: s}
}

// Read fills p completely or returns ErrShortRead with the partial count.
func (r *Reader) Read(p []byte) (int, error) {
	n := r.sampler.Sample(p)
	if n < len(p) {
		return n, ErrShortRead
	}
	return n, nil
}

// Generate returns n fresh bytes. A negative n is rejected before the
// source is touched.
func (r *Reader) Generate(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	buf := make([]byte, n)
	got, err := r.Read(buf)
	if err != nil {
		return buf[:got], err
	}
	return buf, nil
}

// Available reports whether the underlying source can produce output.
// Sources that do not report availability are assumed available.
func (r *Reader) Available() bool {
	if a, ok := r.sampler.Source.(interface{ Available() bool }); ok {
		return a.Available()
	}
	return true
}

// Stats returns the counters of the underlying sampler.
func (r *Reader) Stats() Stats { return r.sampler.Stats() }

var (
	// Fast reads from RNDR with the default retry budget.
	Fast = NewReader(fast)

	// Direct reads from RNDRRS with the default retry budget.
	Direct = NewReader(direct)
)
