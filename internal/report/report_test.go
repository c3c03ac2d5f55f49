package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"armrng/internal/armcap"
	"armrng/internal/rndr"
	"armrng/internal/sanity"
)

func sampleReport() *Report {
	r := New(armcap.RNG|0x3, armcap.MethodOverride)
	r.Generated = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	r.Add("RNDR", &sanity.Result{
		Rounds:    1000,
		ZeroWords: 1,
		Health: []sanity.HealthResult{
			{Name: "repetition_count", Status: sanity.HealthHealthy},
		},
		Duration: 1500 * time.Microsecond,
	}, nil, &rndr.Stats{Calls: 1000, Attempts: 1002, Declines: 2, Bytes: 31000})

	r.Add("RNDRRS", &sanity.Result{Rounds: 0, Failures: 10000},
		&sanity.AssertionError{Assertion: sanity.AssertFullBuffer, Round: 0, Got: 0, Want: 31}, nil)
	return r
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, "yml": FormatYAML, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("csv")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestNew(t *testing.T) {
	r := New(armcap.RNG, armcap.MethodHWCap)
	assert.True(t, r.RNG)
	assert.Equal(t, uint32(0x100), r.Caps)
	assert.Equal(t, "hwcap", r.Method)
	assert.Equal(t, 0, r.ExitCode())

	r = New(0, armcap.MethodUnsupported)
	assert.False(t, r.RNG)
	assert.Equal(t, 1, r.ExitCode())
	assert.False(t, r.Passed())
}

func TestAdd(t *testing.T) {
	r := sampleReport()
	require.Len(t, r.Sources, 2)

	ok := r.Sources[0]
	assert.True(t, ok.Passed)
	assert.Equal(t, 1000, ok.Rounds)
	assert.InDelta(t, 1.5, ok.DurationMs, 1e-9)
	assert.Zero(t, ok.ExitCode)
	assert.Empty(t, ok.Assertion)

	bad := r.Sources[1]
	assert.False(t, bad.Passed)
	assert.Equal(t, "full_buffer", bad.Assertion)
	assert.Equal(t, sanity.AssertFullBuffer.ExitCode(), bad.ExitCode)
	assert.Equal(t, 10000, bad.Failures)

	assert.Equal(t, 2, r.ExitCode())
}

func TestAddWithoutResult(t *testing.T) {
	r := New(armcap.RNG, armcap.MethodProbe)
	r.Add("RNDR", nil, errors.New("sanity: invalid options"), nil)

	assert.Equal(t, 1, r.Sources[0].ExitCode)
	assert.Equal(t, 1, r.ExitCode())
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatText))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "=== armrng Report ===\n"))
	assert.Contains(t, out, "Capabilities: 0x103 (rng,other=0x3)")
	assert.Contains(t, out, "RNDR:         available")
	assert.Contains(t, out, "RNDR: PASSED")
	assert.Contains(t, out, "RNDRRS: FAILED")
	assert.Contains(t, out, "Sampler:    1000 calls, 1002 attempts, 2 declines, 0 short")
	assert.Contains(t, out, "Error:      sanity: full_buffer at round 0")
}

func TestWriteJSONValidates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatJSON))
	require.NoError(t, Validate(buf.Bytes()))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "override", decoded.Method)
	assert.Equal(t, "RNDRRS", decoded.Sources[1].Name)
	require.Len(t, decoded.Sources[0].Health, 1)
	assert.Equal(t, sanity.HealthHealthy, decoded.Sources[0].Health[0].Status)
}

func TestWriteJSONEmptyReportValidates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, New(0, armcap.MethodNone), FormatJSON))
	assert.Contains(t, buf.String(), `"sources": []`)
	require.NoError(t, Validate(buf.Bytes()))
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatYAML))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "override", decoded["method"])
	assert.Equal(t, true, decoded["rng"])
	sources, ok := decoded["sources"].([]any)
	require.True(t, ok)
	assert.Len(t, sources, 2)
	assert.Contains(t, buf.String(), "status: healthy")
}

func TestWriteUnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, sampleReport(), Format("xml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"not json":       `{`,
		"missing fields": `{"caps": 1}`,
		"bad method":     `{"generated":"2026-01-01T00:00:00Z","caps":256,"caps_text":"","rng":true,"method":"magic","sources":[]}`,
		"negative rounds": `{"generated":"2026-01-01T00:00:00Z","caps":256,"caps_text":"","rng":true,"method":"hwcap",
			"sources":[{"name":"RNDR","passed":true,"rounds":-1,"zero_words":0,"failures":0,"exit_code":0,"duration_ms":0}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate([]byte(doc)))
		})
	}
}

func TestReportFromRealRun(t *testing.T) {
	src := rndr.SourceFunc(func(buf []byte) int {
		for i := range buf {
			buf[i] = byte(i)
		}
		return len(buf)
	})
	res, err := sanity.Check(context.Background(), src, sanity.FastOptions())
	require.Error(t, err)

	r := New(armcap.RNG, armcap.MethodOverride)
	r.Add("stub", res, err, nil)

	assert.Equal(t, "distinct_rounds", r.Sources[0].Assertion)
	assert.Equal(t, 3, r.ExitCode())

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatJSON))
	require.NoError(t, Validate(buf.Bytes()))
}
