package metrics

import (
	"time"

	"armrng/internal/report"
)

// RNGMetrics records monitor passes.
type RNGMetrics struct {
	registry *Registry

	Passes    *Counter
	Available *Gauge
	LastPass  *Gauge
}

// NewRNGMetrics registers the pass-level series in registry.
func NewRNGMetrics(registry *Registry) *RNGMetrics {
	return &RNGMetrics{
		registry:  registry,
		Passes:    registry.Counter("monitor_passes_total", "Completed monitor passes", nil),
		Available: registry.Gauge("rng_available", "Whether the hardware RNG capability is present", nil),
		LastPass:  registry.Gauge("monitor_last_pass_timestamp_seconds", "Unix time of the last completed pass", nil),
	}
}

// Registry returns the registry the metrics live in.
func (m *RNGMetrics) Registry() *Registry { return m.registry }

// Observe records one pass report.
func (m *RNGMetrics) Observe(r *report.Report) {
	m.Passes.Inc()
	m.LastPass.Set(r.Generated.Unix())
	if r.RNG {
		m.Available.Set(1)
	} else {
		m.Available.Set(0)
	}

	for _, s := range r.Sources {
		src := Labels{"source": s.Name}
		m.registry.Counter("sanity_runs_total", "Sanity runs per source", src).Inc()
		passed := int64(0)
		if s.Passed {
			passed = 1
		} else {
			m.registry.Counter("sanity_failures_total", "Failed sanity runs by assertion",
				Labels{"source": s.Name, "assertion": assertionLabel(s)}).Inc()
		}
		m.registry.Gauge("sanity_passed", "Whether the last sanity run passed", src).Set(passed)
		m.registry.Counter("sanity_short_calls_total", "Short source calls seen by the harness", src).Add(uint64(s.Failures))
		m.registry.Histogram("sanity_duration_seconds", "Duration of a sanity run", src, nil).
			ObserveDuration(time.Duration(s.DurationMs * float64(time.Millisecond)))
		if s.Sampler != nil {
			m.registry.Counter("sampler_declines_total", "Declined instruction attempts", src).Add(s.Sampler.Declines)
		}
	}
}

func assertionLabel(s report.SourceReport) string {
	if s.Assertion == "" {
		return "error"
	}
	return s.Assertion
}
