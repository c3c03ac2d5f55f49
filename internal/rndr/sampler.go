package rndr

import (
	"sync/atomic"
	"time"
)

// Retry defaults shared by both hardware sources.
const (
	DefaultMaxAttempts = 8
	DefaultInterval    = 5 * time.Millisecond
)

// Sampler drives a Source with bounded retry.
//
// A Sampler may be shared between goroutines; each Sample call blocks only
// its caller, including while it sleeps between attempts.
type Sampler struct {
	// Source is the raw producer.
	Source Source

	// MaxAttempts bounds calls to Source per Sample. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int

	// Interval is the pause between attempts. Zero means DefaultInterval.
	Interval time.Duration

	// Sleep pauses between attempts. Defaults to time.Sleep.
	Sleep func(time.Duration)

	calls    atomic.Uint64
	attempts atomic.Uint64
	declines atomic.Uint64
	short    atomic.Uint64
	produced atomic.Uint64
}

// Stats counts sampler activity since creation.
type Stats struct {
	Calls        uint64 `json:"calls" yaml:"calls"`
	Attempts     uint64 `json:"attempts" yaml:"attempts"`
	Declines     uint64 `json:"declines" yaml:"declines"`
	ShortResults uint64 `json:"short_results" yaml:"short_results"`
	Bytes        uint64 `json:"bytes" yaml:"bytes"`
}

// NewSampler returns a sampler over src with the default retry budget.
func NewSampler(src Source) *Sampler {
	return &Sampler{Source: src}
}

// Sample fills buf, retrying while the source comes back short. It returns
// the byte count of the last attempt, which is less than len(buf) only when
// every attempt declined. An empty buf returns 0 without calling the source.
func (s *Sampler) Sample(buf []byte) int {
	s.calls.Add(1)
	if len(buf) == 0 {
		return 0
	}

	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	n := 0
	for i := 0; i < attempts; i++ {
		if i > 0 {
			s.sleep()
		}
		n = s.Source.Fill(buf)
		if n < 0 {
			n = 0
		} else if n > len(buf) {
			n = len(buf)
		}
		s.attempts.Add(1)
		if n == len(buf) {
			break
		}
		s.declines.Add(1)
	}

	if n < len(buf) {
		s.short.Add(1)
	}
	s.produced.Add(uint64(n))
	return n
}

func (s *Sampler) sleep() {
	d := s.Interval
	if d <= 0 {
		d = DefaultInterval
	}
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Fill implements Source, so a Sampler can be layered under code that
// expects a raw producer.
func (s *Sampler) Fill(buf []byte) int { return s.Sample(buf) }

// Stats returns a snapshot of the counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Calls:        s.calls.Load(),
		Attempts:     s.attempts.Load(),
		Declines:     s.declines.Load(),
		ShortResults: s.short.Load(),
		Bytes:        s.produced.Load(),
	}
}

// Sample fills buf from src with the default retry budget.
func Sample(src Source, buf []byte) int {
	return NewSampler(src).Sample(buf)
}

var (
	fast   = NewSampler(RNDR)
	direct = NewSampler(RNDRRS)
)

// Bytes fills buf from RNDR and returns the number of bytes written.
func Bytes(buf []byte) int { return fast.Sample(buf) }

// RSBytes fills buf from RNDRRS and returns the number of bytes written.
//
// TODO: RNDRRS declines far more often than RNDR under sustained load and
// eight attempts can run out; measure decline rates on Neoverse parts and
// pick a separate default.
func RSBytes(buf []byte) int { return direct.Sample(buf) }

// FastStats returns the counters behind Bytes.
func FastStats() Stats { return fast.Stats() }

// DirectStats returns the counters behind RSBytes.
func DirectStats() Stats { return direct.Stats() }
