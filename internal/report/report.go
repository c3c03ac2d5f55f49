// Package report renders the outcome of capability detection and sanity
// runs as text, JSON or YAML.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"armrng/internal/armcap"
	"armrng/internal/rndr"
	"armrng/internal/sanity"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("report: unknown format")

// ParseFormat accepts text, json, yaml or yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Report is one detection plus zero or more sanity runs.
type Report struct {
	Generated time.Time      `json:"generated" yaml:"generated"`
	Caps      uint32         `json:"caps" yaml:"caps"`
	CapsText  string         `json:"caps_text" yaml:"caps_text"`
	RNG       bool           `json:"rng" yaml:"rng"`
	Method    string         `json:"method" yaml:"method"`
	Sources   []SourceReport `json:"sources" yaml:"sources"`
}

// SourceReport is the outcome of one sanity run.
type SourceReport struct {
	Name       string                `json:"name" yaml:"name"`
	Passed     bool                  `json:"passed" yaml:"passed"`
	Rounds     int                   `json:"rounds" yaml:"rounds"`
	ZeroWords  int                   `json:"zero_words" yaml:"zero_words"`
	Failures   int                   `json:"failures" yaml:"failures"`
	Assertion  string                `json:"assertion,omitempty" yaml:"assertion,omitempty"`
	Error      string                `json:"error,omitempty" yaml:"error,omitempty"`
	ExitCode   int                   `json:"exit_code" yaml:"exit_code"`
	DurationMs float64               `json:"duration_ms" yaml:"duration_ms"`
	Health     []sanity.HealthResult `json:"health,omitempty" yaml:"health,omitempty"`
	Sampler    *rndr.Stats           `json:"sampler,omitempty" yaml:"sampler,omitempty"`
}

// New starts a report for the given detection result.
func New(caps armcap.Caps, method armcap.Method) *Report {
	return &Report{
		Generated: time.Now().UTC(),
		Caps:      uint32(caps),
		CapsText:  caps.String(),
		RNG:       caps.Has(armcap.RNG),
		Method:    method.String(),
		Sources:   []SourceReport{},
	}
}

// Add records a sanity run. res may be nil when the run never started, in
// which case err explains why. stats is optional.
func (r *Report) Add(name string, res *sanity.Result, err error, stats *rndr.Stats) {
	sr := SourceReport{Name: name, Passed: err == nil, Sampler: stats}
	if res != nil {
		sr.Rounds = res.Rounds
		sr.ZeroWords = res.ZeroWords
		sr.Failures = res.Failures
		sr.Health = res.Health
		sr.DurationMs = float64(res.Duration) / float64(time.Millisecond)
	}
	if err != nil {
		sr.Error = err.Error()
		sr.ExitCode = 1
		var ae *sanity.AssertionError
		if errors.As(err, &ae) {
			sr.Assertion = ae.Assertion.String()
			sr.ExitCode = ae.Assertion.ExitCode()
		}
	}
	r.Sources = append(r.Sources, sr)
}

// Passed reports whether the capability is present and every run passed.
func (r *Report) Passed() bool {
	return r.ExitCode() == 0
}

// ExitCode is 1 when the capability is absent, otherwise the code of the
// first failed run, otherwise 0.
func (r *Report) ExitCode() int {
	if !r.RNG {
		return 1
	}
	for _, s := range r.Sources {
		if !s.Passed {
			return s.ExitCode
		}
	}
	return 0
}

// Write renders r to w.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, r)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func writeText(w io.Writer, r *Report) error {
	var b strings.Builder
	b.WriteString("=== armrng Report ===\n")
	fmt.Fprintf(&b, "Capabilities: %s\n", r.CapsText)
	fmt.Fprintf(&b, "Detected by:  %s\n", r.Method)
	if r.RNG {
		b.WriteString("RNDR:         available\n")
	} else {
		b.WriteString("RNDR:         NOT AVAILABLE\n")
	}

	for _, s := range r.Sources {
		b.WriteString("\n")
		status := "PASSED"
		if !s.Passed {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "%s: %s\n", s.Name, status)
		fmt.Fprintf(&b, "  Rounds:     %d\n", s.Rounds)
		fmt.Fprintf(&b, "  Zero words: %d\n", s.ZeroWords)
		fmt.Fprintf(&b, "  Failures:   %d\n", s.Failures)
		fmt.Fprintf(&b, "  Duration:   %.1fms\n", s.DurationMs)
		for _, h := range s.Health {
			fmt.Fprintf(&b, "  Health:     %s %s (%d failures)\n", h.Name, h.Status, h.Failures)
		}
		if s.Sampler != nil {
			fmt.Fprintf(&b, "  Sampler:    %d calls, %d attempts, %d declines, %d short\n",
				s.Sampler.Calls, s.Sampler.Attempts, s.Sampler.Declines, s.Sampler.ShortResults)
		}
		if s.Error != "" {
			fmt.Fprintf(&b, "  Error:      %s\n", s.Error)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
