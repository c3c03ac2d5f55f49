// Package sanity is the acceptance harness for hardware random sources.
//
// Check drives a source for a number of rounds and asserts coarse
// statistical properties that catch stuck, zeroed or absent hardware:
// every round fills its buffer within a retry ceiling, no two consecutive
// rounds are identical, the tail of each round is not a single repeated
// byte, adjacent zero bytes stay rare, and declines do not fall below a
// floor. These are smoke tests, not entropy certification.
package sanity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"armrng/internal/rndr"
)

var ErrInvalidOptions = errors.New("sanity: invalid options")

// Assertion identifies one acceptance property.
type Assertion int

const (
	AssertFullBuffer Assertion = iota + 1
	AssertDistinctRounds
	AssertVariedTail
	AssertZeroWords
	AssertFailureFloor
	AssertHealth
)

// String returns the assertion name.
func (a Assertion) String() string {
	switch a {
	case AssertFullBuffer:
		return "full_buffer"
	case AssertDistinctRounds:
		return "distinct_rounds"
	case AssertVariedTail:
		return "varied_tail"
	case AssertZeroWords:
		return "zero_words"
	case AssertFailureFloor:
		return "failure_floor"
	case AssertHealth:
		return "health"
	default:
		return "unknown"
	}
}

// ExitCode is the process status a gating tool exits with when a is the
// first violated assertion. Status 1 is reserved for a missing capability.
func (a Assertion) ExitCode() int {
	if a < AssertFullBuffer || a > AssertHealth {
		return 1
	}
	return int(a) + 1
}

// AssertionError reports the first violated assertion. Round is zero-based,
// or -1 for assertions evaluated over the whole run.
type AssertionError struct {
	Assertion Assertion
	Round     int
	Got       int
	Want      int
}

func (e *AssertionError) Error() string {
	var cmp string
	switch e.Assertion {
	case AssertFullBuffer:
		cmp = fmt.Sprintf("generated %d bytes, want %d", e.Got, e.Want)
	case AssertDistinctRounds:
		cmp = "buffer identical to previous round"
	case AssertVariedTail:
		cmp = fmt.Sprintf("last %d bytes identical", e.Want)
	case AssertZeroWords:
		cmp = fmt.Sprintf("%d zero words, want <= %d", e.Got, e.Want)
	case AssertFailureFloor:
		cmp = fmt.Sprintf("%d failures, want >= %d", e.Got, e.Want)
	case AssertHealth:
		cmp = fmt.Sprintf("%d health test failures", e.Got)
	default:
		cmp = "failed"
	}
	if e.Round < 0 {
		return fmt.Sprintf("sanity: %s: %s", e.Assertion, cmp)
	}
	return fmt.Sprintf("sanity: %s at round %d: %s", e.Assertion, e.Round, cmp)
}

// Options configures a run.
type Options struct {
	// Rounds is the number of buffers requested.
	Rounds int `json:"rounds" yaml:"rounds"`

	// BufferSize is the length of each request.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// TailSize is how many trailing bytes must not all be equal.
	TailSize int `json:"tail_size" yaml:"tail_size"`

	// MaxRetries bounds source calls per round.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxZeroWords caps adjacent zero-byte pairs across the run.
	MaxZeroWords int `json:"max_zero_words" yaml:"max_zero_words"`

	// MinFailures is the floor on short source calls across the run.
	MinFailures int `json:"min_failures" yaml:"min_failures"`

	// HealthTests makes a failed continuous health test an assertion
	// failure. The tests always run and are reported either way.
	HealthTests bool `json:"health_tests" yaml:"health_tests"`
}

// Defaults for a run against the fast source.
const (
	DefaultRounds       = 1000
	DefaultBufferSize   = 31
	DefaultTailSize     = 7
	DefaultMaxZeroWords = 10
	FastMaxRetries      = 10
	DirectMaxRetries    = 10000
)

// FastOptions returns the options used for RNDR.
func FastOptions() Options {
	return Options{
		Rounds:       DefaultRounds,
		BufferSize:   DefaultBufferSize,
		TailSize:     DefaultTailSize,
		MaxRetries:   FastMaxRetries,
		MaxZeroWords: DefaultMaxZeroWords,
	}
}

// DirectOptions returns the options used for RNDRRS, which needs a far
// larger retry ceiling.
func DirectOptions() Options {
	opts := FastOptions()
	opts.MaxRetries = DirectMaxRetries
	return opts
}

// Validate reports options that cannot describe a run.
func (o Options) Validate() error {
	switch {
	case o.Rounds < 1:
		return fmt.Errorf("%w: rounds must be positive, got %d", ErrInvalidOptions, o.Rounds)
	case o.BufferSize < 1:
		return fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidOptions, o.BufferSize)
	case o.TailSize < 2 || o.TailSize > o.BufferSize:
		return fmt.Errorf("%w: tail size must be in [2, %d], got %d", ErrInvalidOptions, o.BufferSize, o.TailSize)
	case o.MaxRetries < 1:
		return fmt.Errorf("%w: max retries must be positive, got %d", ErrInvalidOptions, o.MaxRetries)
	case o.MaxZeroWords < 0:
		return fmt.Errorf("%w: max zero words must not be negative, got %d", ErrInvalidOptions, o.MaxZeroWords)
	case o.MinFailures < 0:
		return fmt.Errorf("%w: min failures must not be negative, got %d", ErrInvalidOptions, o.MinFailures)
	}
	return nil
}

// Result describes a run, complete or not.
type Result struct {
	Rounds    int            `json:"rounds" yaml:"rounds"`
	ZeroWords int            `json:"zero_words" yaml:"zero_words"`
	Failures  int            `json:"failures" yaml:"failures"`
	Health    []HealthResult `json:"health" yaml:"health"`
	Duration  time.Duration  `json:"duration_ns" yaml:"duration_ns"`
}

// Check runs the harness against src. On the first violated assertion it
// returns an *AssertionError along with the partial result. ctx is checked
// before each round and between retries within a round.
func Check(ctx context.Context, src rndr.Source, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{}
	health := []HealthTest{
		NewRepetitionCountTest(0),
		NewAdaptiveProportionTest(0, 0),
	}
	finish := func(err error) (*Result, error) {
		res.Health = healthResults(health)
		res.Duration = time.Since(start)
		return res, err
	}
	fail := func(a Assertion, round, got, want int) (*Result, error) {
		return finish(&AssertionError{Assertion: a, Round: round, Got: got, Want: want})
	}

	prior := make([]byte, opts.BufferSize)
	buf := make([]byte, opts.BufferSize)

	for round := 0; round < opts.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		generated := 0
		for retry := 0; retry < opts.MaxRetries; retry++ {
			if retry > 0 {
				if err := ctx.Err(); err != nil {
					return finish(err)
				}
			}
			generated = src.Fill(buf)
			if generated == len(buf) {
				break
			}
			res.Failures++
		}

		res.ZeroWords += countZeroWords(buf)
		if generated != len(buf) {
			return fail(AssertFullBuffer, round, generated, len(buf))
		}
		// The count only grows, so exceeding the ceiling early is final.
		if res.ZeroWords > opts.MaxZeroWords {
			return fail(AssertZeroWords, round, res.ZeroWords, opts.MaxZeroWords)
		}
		if bytes.Equal(prior, buf) {
			return fail(AssertDistinctRounds, round, 0, 0)
		}
		if uniform(buf[len(buf)-opts.TailSize:]) {
			return fail(AssertVariedTail, round, 0, opts.TailSize)
		}

		feedAll(health, buf)
		copy(prior, buf)
		res.Rounds++
	}

	if res.Failures < opts.MinFailures {
		return fail(AssertFailureFloor, -1, res.Failures, opts.MinFailures)
	}
	if opts.HealthTests {
		var failures uint64
		for _, t := range health {
			failures += t.Failures()
		}
		if failures > 0 {
			return fail(AssertHealth, -1, int(failures), 0)
		}
	}
	return finish(nil)
}

// countZeroWords counts positions where a zero byte is followed by another.
func countZeroWords(buf []byte) int {
	n := 0
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 {
			n++
		}
	}
	return n
}

func uniform(b []byte) bool {
	for _, c := range b[1:] {
		if c != b[0] {
			return false
		}
	}
	return true
}
