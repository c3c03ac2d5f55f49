package rndr

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource returns the scripted counts in order, repeating the last
// one once the script runs out, and records every call.
type scriptedSource struct {
	mu     sync.Mutex
	counts []int
	calls  int
	times  []time.Time
}

func (s *scriptedSource) Fill(buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times = append(s.times, time.Now())
	i := s.calls
	if i >= len(s.counts) {
		i = len(s.counts) - 1
	}
	s.calls++
	n := s.counts[i]
	for j := 0; j < n && j < len(buf); j++ {
		buf[j] = byte(j + 1)
	}
	return n
}

func noSleep(time.Duration) {}

func TestSampleDeclinesTwiceThenSucceeds(t *testing.T) {
	src := &scriptedSource{counts: []int{0, 0, 31}}
	s := &Sampler{Source: src, MaxAttempts: 8, Sleep: noSleep}

	buf := make([]byte, 31)
	assert.Equal(t, 31, s.Sample(buf))
	assert.Equal(t, 3, src.calls)
}

func TestSampleAlwaysDeclines(t *testing.T) {
	var slept []time.Duration
	src := &scriptedSource{counts: []int{0}}
	s := &Sampler{Source: src, Sleep: func(d time.Duration) { slept = append(slept, d) }}

	buf := make([]byte, 31)
	assert.Equal(t, 0, s.Sample(buf))
	assert.Equal(t, DefaultMaxAttempts, src.calls)
	assert.Len(t, slept, DefaultMaxAttempts-1, "no sleep after the final attempt")
	for _, d := range slept {
		assert.Equal(t, DefaultInterval, d)
	}
}

func TestSampleSucceedsOnAttemptK(t *testing.T) {
	for k := 1; k <= DefaultMaxAttempts; k++ {
		counts := make([]int, k)
		counts[k-1] = 16
		src := &scriptedSource{counts: counts}
		s := &Sampler{Source: src, Sleep: noSleep}

		assert.Equal(t, 16, s.Sample(make([]byte, 16)), "k=%d", k)
		assert.Equal(t, k, src.calls, "k=%d", k)
	}
}

func TestSampleReturnsLastPartialCount(t *testing.T) {
	src := &scriptedSource{counts: []int{8, 16, 24}}
	s := &Sampler{Source: src, MaxAttempts: 3, Sleep: noSleep}

	assert.Equal(t, 24, s.Sample(make([]byte, 31)))
	assert.Equal(t, 3, src.calls)
}

func TestSampleCustomCeiling(t *testing.T) {
	src := &scriptedSource{counts: []int{0}}
	s := &Sampler{Source: src, MaxAttempts: 3, Sleep: noSleep}

	assert.Equal(t, 0, s.Sample(make([]byte, 4)))
	assert.Equal(t, 3, src.calls)
}

func TestSampleEmptyBuffer(t *testing.T) {
	src := &scriptedSource{counts: []int{0}}
	s := &Sampler{Source: src, Sleep: noSleep}

	assert.Equal(t, 0, s.Sample(nil))
	assert.Zero(t, src.calls)
}

func TestSampleClampsSourceCount(t *testing.T) {
	over := &Sampler{Source: SourceFunc(func(buf []byte) int { return len(buf) + 10 }), Sleep: noSleep}
	assert.Equal(t, 8, over.Sample(make([]byte, 8)))

	under := &Sampler{Source: SourceFunc(func([]byte) int { return -1 }), MaxAttempts: 2, Sleep: noSleep}
	assert.Equal(t, 0, under.Sample(make([]byte, 8)))
}

func TestSampleSleepsBetweenAttempts(t *testing.T) {
	const interval = 2 * time.Millisecond
	src := &scriptedSource{counts: []int{0}}
	s := &Sampler{Source: src, MaxAttempts: 4, Interval: interval}

	s.Sample(make([]byte, 8))

	require.Len(t, src.times, 4)
	for i := 1; i < len(src.times); i++ {
		gap := src.times[i].Sub(src.times[i-1])
		assert.GreaterOrEqual(t, gap, interval, "gap before attempt %d", i+1)
	}
}

func TestSamplerStats(t *testing.T) {
	src := &scriptedSource{counts: []int{0, 8, 0}}
	s := &Sampler{Source: src, MaxAttempts: 2, Sleep: noSleep}

	s.Sample(make([]byte, 8)) // declines once, then fills
	s.Sample(make([]byte, 8)) // declines twice
	s.Sample(nil)

	assert.Equal(t, Stats{
		Calls:        3,
		Attempts:     4,
		Declines:     3,
		ShortResults: 1,
		Bytes:        8,
	}, s.Stats())
}

func TestSamplerFillDelegates(t *testing.T) {
	src := &scriptedSource{counts: []int{0, 4}}
	var layered Source = &Sampler{Source: src, Sleep: noSleep}

	assert.Equal(t, 4, layered.Fill(make([]byte, 4)))
}

func TestSamplerConcurrentUse(t *testing.T) {
	s := &Sampler{Source: SourceFunc(func(buf []byte) int { return len(buf) })}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Sample(make([]byte, 31))
			}
		}()
	}
	wg.Wait()

	stats := s.Stats()
	assert.Equal(t, uint64(1600), stats.Calls)
	assert.Equal(t, uint64(1600*31), stats.Bytes)
	assert.Zero(t, stats.Declines)
}

func TestPackageSample(t *testing.T) {
	src := &scriptedSource{counts: []int{0, 12}}
	buf := make([]byte, 12)

	start := time.Now()
	assert.Equal(t, 12, Sample(src, buf))
	assert.GreaterOrEqual(t, time.Since(start), DefaultInterval)
	assert.Equal(t, 2, src.calls)
}
