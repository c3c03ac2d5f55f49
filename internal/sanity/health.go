package sanity

import "fmt"

// Continuous health tests from NIST SP 800-90B section 4.4, applied to the
// byte stream the checker accepts. They are not safe for concurrent use.

// HealthStatus is the state of a continuous health test.
type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthHealthy
	HealthFailed
)

// String returns the status name.
func (h HealthStatus) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON and YAML reports.
func (h HealthStatus) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses a status name written by MarshalText.
func (h *HealthStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unknown":
		*h = HealthUnknown
	case "healthy":
		*h = HealthHealthy
	case "failed":
		*h = HealthFailed
	default:
		return fmt.Errorf("sanity: unknown health status %q", text)
	}
	return nil
}

// HealthTest consumes samples one byte at a time.
type HealthTest interface {
	Name() string
	Feed(b byte)
	Status() HealthStatus
	Failures() uint64
}

// HealthResult summarises one health test after a run.
type HealthResult struct {
	Name     string       `json:"name" yaml:"name"`
	Status   HealthStatus `json:"status" yaml:"status"`
	Failures uint64       `json:"failures" yaml:"failures"`
}

// Default cutoffs for 8-bit samples at a false positive rate of 2^-20 with
// a conservative min-entropy estimate of one bit per sample.
const (
	DefaultRCTCutoff = 21
	DefaultAPTWindow = 512
	DefaultAPTCutoff = 410
)

// RepetitionCountTest flags a stuck output: the same value repeated cutoff
// times in a row.
type RepetitionCountTest struct {
	cutoff   int
	last     byte
	run      int
	failures uint64
	status   HealthStatus
}

// NewRepetitionCountTest returns a test with the given cutoff, or
// DefaultRCTCutoff when cutoff is not positive.
func NewRepetitionCountTest(cutoff int) *RepetitionCountTest {
	if cutoff <= 0 {
		cutoff = DefaultRCTCutoff
	}
	return &RepetitionCountTest{cutoff: cutoff}
}

func (t *RepetitionCountTest) Name() string { return "repetition_count" }

func (t *RepetitionCountTest) Feed(b byte) {
	if t.run > 0 && b == t.last {
		t.run++
	} else {
		t.last = b
		t.run = 1
	}
	if t.run >= t.cutoff {
		t.failures++
		t.status = HealthFailed
		t.run = 0
		return
	}
	if t.status == HealthUnknown {
		t.status = HealthHealthy
	}
}

func (t *RepetitionCountTest) Status() HealthStatus { return t.status }

func (t *RepetitionCountTest) Failures() uint64 { return t.failures }


// AdaptiveProportionTest flags bias: within each window of samples, the
// first sample's value must not appear cutoff or more times.
type AdaptiveProportionTest struct {
	window   int
	cutoff   int
	ref      byte
	seen     int
	count    int
	failures uint64
	status   HealthStatus
}

// NewAdaptiveProportionTest returns a test with the given window and
// cutoff; non-positive values select the defaults.
func NewAdaptiveProportionTest(window, cutoff int) *AdaptiveProportionTest {
	if window <= 0 {
		window = DefaultAPTWindow
	}
	if cutoff <= 0 {
		cutoff = DefaultAPTCutoff
	}
	return &AdaptiveProportionTest{window: window, cutoff: cutoff}
}

func (t *AdaptiveProportionTest) Name() string { return "adaptive_proportion" }

func (t *AdaptiveProportionTest) Feed(b byte) {
	if t.seen == 0 {
		t.ref = b
		t.count = 1
	} else if b == t.ref {
		t.count++
	}
	t.seen++

	if t.count >= t.cutoff {
		t.failures++
		t.status = HealthFailed
		t.seen = 0
		return
	}
	if t.seen == t.window {
		t.seen = 0
		if t.status == HealthUnknown {
			t.status = HealthHealthy
		}
	}
}

func (t *AdaptiveProportionTest) Status() HealthStatus { return t.status }

func (t *AdaptiveProportionTest) Failures() uint64 { return t.failures }

func feedAll(tests []HealthTest, buf []byte) {
	for _, b := range buf {
		for _, t := range tests {
			t.Feed(b)
		}
	}
}

func healthResults(tests []HealthTest) []HealthResult {
	out := make([]HealthResult, 0, len(tests))
	for _, t := range tests {
		out = append(out, HealthResult{Name: t.Name(), Status: t.Status(), Failures: t.Failures()})
	}
	return out
}
