package sanity

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"armrng/internal/rndr"
)

var randomSource = rndr.SourceFunc(func(buf []byte) int {
	n, _ := rand.Read(buf)
	return n
})

func fixedSource(fill byte) rndr.Source {
	return rndr.SourceFunc(func(buf []byte) int {
		for i := range buf {
			buf[i] = fill + byte(i)
		}
		return len(buf)
	})
}

func requireAssertion(t *testing.T, err error, want Assertion) *AssertionError {
	t.Helper()
	var ae *AssertionError
	require.True(t, errors.As(err, &ae), "expected *AssertionError, got %v", err)
	require.Equal(t, want, ae.Assertion, ae.Error())
	return ae
}

func TestCheckRandomSourcePasses(t *testing.T) {
	for name, opts := range map[string]Options{"fast": FastOptions(), "direct": DirectOptions()} {
		t.Run(name, func(t *testing.T) {
			opts.HealthTests = true
			res, err := Check(context.Background(), randomSource, opts)
			require.NoError(t, err)
			assert.Equal(t, DefaultRounds, res.Rounds)
			assert.LessOrEqual(t, res.ZeroWords, DefaultMaxZeroWords)
			assert.Zero(t, res.Failures)
			require.Len(t, res.Health, 2)
			for _, h := range res.Health {
				assert.Equal(t, HealthHealthy, h.Status, h.Name)
			}
			assert.Positive(t, res.Duration)
		})
	}
}

func TestCheckFixedBufferFailsDistinctRounds(t *testing.T) {
	res, err := Check(context.Background(), fixedSource(1), FastOptions())

	ae := requireAssertion(t, err, AssertDistinctRounds)
	assert.Equal(t, 1, ae.Round, "must fail within two rounds")
	assert.Equal(t, 1, res.Rounds)
}

func TestCheckAllZeroFailsZeroWords(t *testing.T) {
	zero := rndr.SourceFunc(func(buf []byte) int {
		clear(buf)
		return len(buf)
	})

	_, err := Check(context.Background(), zero, FastOptions())

	ae := requireAssertion(t, err, AssertZeroWords)
	assert.Less(t, ae.Round, DefaultRounds)
	assert.Greater(t, ae.Got, DefaultMaxZeroWords)
}

func TestCheckAbsentInstructionFailsFullBuffer(t *testing.T) {
	calls := 0
	absent := rndr.SourceFunc(func([]byte) int {
		calls++
		return 0
	})

	res, err := Check(context.Background(), absent, FastOptions())

	ae := requireAssertion(t, err, AssertFullBuffer)
	assert.Equal(t, 0, ae.Round)
	assert.Equal(t, 0, ae.Got)
	assert.Equal(t, DefaultBufferSize, ae.Want)
	assert.Equal(t, FastMaxRetries, calls)
	assert.Equal(t, FastMaxRetries, res.Failures)
}

func TestCheckUniformTail(t *testing.T) {
	round := byte(0)
	src := rndr.SourceFunc(func(buf []byte) int {
		round++
		for i := range buf {
			buf[i] = round + byte(i)
		}
		for i := len(buf) - DefaultTailSize; i < len(buf); i++ {
			buf[i] = 0xaa
		}
		return len(buf)
	})

	_, err := Check(context.Background(), src, FastOptions())

	ae := requireAssertion(t, err, AssertVariedTail)
	assert.Equal(t, 0, ae.Round)
}

func TestCheckCountsDeclines(t *testing.T) {
	calls := 0
	flaky := rndr.SourceFunc(func(buf []byte) int {
		calls++
		if calls%3 == 0 {
			return 0
		}
		return randomSource.Fill(buf)
	})

	opts := FastOptions()
	opts.Rounds = 300
	res, err := Check(context.Background(), flaky, opts)
	require.NoError(t, err)
	assert.Equal(t, 300, res.Rounds)
	assert.Positive(t, res.Failures)
	assert.Equal(t, calls-300, res.Failures)
}

func TestCheckFailureFloor(t *testing.T) {
	opts := FastOptions()
	opts.Rounds = 10
	opts.MinFailures = 1

	res, err := Check(context.Background(), randomSource, opts)

	ae := requireAssertion(t, err, AssertFailureFloor)
	assert.Equal(t, -1, ae.Round)
	assert.Equal(t, 10, res.Rounds)
}

func TestCheckHealthTests(t *testing.T) {
	// Each round passes the per-round assertions, but the long run of a
	// single value trips the repetition count test.
	round := 0
	stuckHead := rndr.SourceFunc(func(buf []byte) int {
		round++
		for i := range buf {
			buf[i] = 0x41
		}
		tail := buf[len(buf)-DefaultTailSize:]
		for i := range tail {
			tail[i] = byte(round + i)
		}
		return len(buf)
	})

	opts := FastOptions()
	opts.Rounds = 5

	res, err := Check(context.Background(), stuckHead, opts)
	require.NoError(t, err, "health failures are reported only when enforced")
	assert.Equal(t, HealthFailed, res.Health[0].Status)

	round = 0
	opts.HealthTests = true
	_, err = Check(context.Background(), stuckHead, opts)
	requireAssertion(t, err, AssertHealth)
}

func TestCheckThroughSampler(t *testing.T) {
	calls := 0
	declineTwice := rndr.SourceFunc(func(buf []byte) int {
		calls++
		if calls%3 != 0 {
			return 0
		}
		return randomSource.Fill(buf)
	})
	sampler := &rndr.Sampler{Source: declineTwice, Sleep: func(time.Duration) {}}

	opts := FastOptions()
	opts.Rounds = 50
	res, err := Check(context.Background(), sampler, opts)
	require.NoError(t, err)
	assert.Zero(t, res.Failures, "the sampler absorbs the declines")
	assert.Equal(t, 150, calls)
	assert.Equal(t, uint64(100), sampler.Stats().Declines)
}

func TestCheckContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Check(ctx, randomSource, FastOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Rounds)
}

func TestCheckContextCancelledDuringRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	declining := rndr.SourceFunc(func(buf []byte) int {
		calls++
		if calls == 3 {
			cancel()
		}
		return 0
	})

	res, err := Check(ctx, declining, DirectOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Failures)
	assert.Zero(t, res.Rounds)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"zero rounds", func(o *Options) { o.Rounds = 0 }},
		{"zero buffer", func(o *Options) { o.BufferSize = 0 }},
		{"tail too short", func(o *Options) { o.TailSize = 1 }},
		{"tail longer than buffer", func(o *Options) { o.TailSize = o.BufferSize + 1 }},
		{"zero retries", func(o *Options) { o.MaxRetries = 0 }},
		{"negative zero words", func(o *Options) { o.MaxZeroWords = -1 }},
		{"negative failures", func(o *Options) { o.MinFailures = -1 }},
	}

	require.NoError(t, FastOptions().Validate())
	require.NoError(t, DirectOptions().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := FastOptions()
			tt.modify(&opts)
			assert.ErrorIs(t, opts.Validate(), ErrInvalidOptions)

			_, err := Check(context.Background(), randomSource, opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestDefaultCeilings(t *testing.T) {
	assert.Equal(t, 10, FastOptions().MaxRetries)
	assert.Equal(t, 10000, DirectOptions().MaxRetries)
	assert.Equal(t, 31, FastOptions().BufferSize)
	assert.Equal(t, 7, FastOptions().TailSize)
	assert.Equal(t, 10, FastOptions().MaxZeroWords)
	assert.Zero(t, FastOptions().MinFailures)
}

func TestAssertionExitCodes(t *testing.T) {
	seen := map[int]Assertion{}
	for a := AssertFullBuffer; a <= AssertHealth; a++ {
		code := a.ExitCode()
		assert.Greater(t, code, 1, a.String())
		_, dup := seen[code]
		assert.False(t, dup, "exit code %d reused by %s", code, a)
		seen[code] = a
	}
	assert.Equal(t, 1, Assertion(0).ExitCode())
	assert.Equal(t, "unknown", Assertion(99).String())
}

func TestAssertionErrorMessage(t *testing.T) {
	err := &AssertionError{Assertion: AssertFullBuffer, Round: 3, Got: 8, Want: 31}
	assert.Equal(t, "sanity: full_buffer at round 3: generated 8 bytes, want 31", err.Error())

	err = &AssertionError{Assertion: AssertZeroWords, Round: -1, Got: 11, Want: 10}
	assert.Equal(t, "sanity: zero_words: 11 zero words, want <= 10", err.Error())
}

func TestCountZeroWords(t *testing.T) {
	assert.Equal(t, 0, countZeroWords([]byte{0, 1, 0, 1}))
	assert.Equal(t, 1, countZeroWords([]byte{1, 0, 0, 1}))
	assert.Equal(t, 2, countZeroWords([]byte{0, 0, 0}))
	assert.Equal(t, 0, countZeroWords(nil))
}
