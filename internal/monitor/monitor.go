// Package monitor re-runs the sanity harness against the hardware sources
// on an interval, for long-running hosts where the RNG may degrade.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"armrng/internal/armcap"
	"armrng/internal/config"
	"armrng/internal/metrics"
	"armrng/internal/report"
	"armrng/internal/rndr"
	"armrng/internal/sanity"
)

// Source is one producer under watch. Direct selects the RNDRRS retry
// ceiling from the configuration.
type Source struct {
	Name   string
	Raw    rndr.Source
	Direct bool
}

// DefaultSources returns RNDR and RNDRRS.
func DefaultSources() []Source {
	return []Source{
		{Name: "RNDR", Raw: rndr.RNDR},
		{Name: "RNDRRS", Raw: rndr.RNDRRS, Direct: true},
	}
}

// Monitor runs a pass over every source, then waits for the configured
// interval. It is safe to call Update while Run is active.
type Monitor struct {
	// Detector gates each pass. Defaults to armcap.Default().
	Detector *armcap.Detector

	// OnReport receives the report of every completed pass.
	OnReport func(*report.Report)

	// Metrics, when set, records every completed pass.
	Metrics *metrics.RNGMetrics

	sources []Source
	logger  *slog.Logger

	mu     sync.RWMutex
	cfg    *config.Config
	reset  chan struct{}
	passes atomic.Uint64
	last   atomic.Pointer[report.Report]
}

// New returns a monitor over sources using cfg, which must be valid.
func New(cfg *config.Config, sources []Source, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		sources: sources,
		logger:  logger,
		cfg:     cfg,
		reset:   make(chan struct{}, 1),
	}
}

// Update swaps the configuration. The next pass uses it, and a pending wait
// restarts with the new interval.
func (m *Monitor) Update(cfg *config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.logger.Info("monitor configuration updated",
		"interval", cfg.MonitorInterval(), "rounds", cfg.Sanity.Rounds)
	select {
	case m.reset <- struct{}{}:
	default:
	}
}

// Config returns the configuration in use.
func (m *Monitor) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Passes returns the number of completed passes.
func (m *Monitor) Passes() uint64 {
	return m.passes.Load()
}

// Run performs a pass immediately and then once per interval until ctx is
// done. It returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if _, err := m.RunOnce(ctx); err != nil {
			return err
		}

		timer := time.NewTimer(m.Config().MonitorInterval())
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-m.reset:
				timer.Stop()
				timer = time.NewTimer(m.Config().MonitorInterval())
			case <-timer.C:
				break wait
			}
		}
	}
}

// RunOnce checks every source and returns the report. The only error is a
// cancelled ctx, in which case the partial report is not delivered.
func (m *Monitor) RunOnce(ctx context.Context) (*report.Report, error) {
	cfg := m.Config()
	det := m.Detector
	if det == nil {
		det = armcap.Default()
	}

	caps := det.Detect()
	rep := report.New(caps, det.Method())
	if !caps.Has(armcap.RNG) {
		m.logger.Warn("hardware RNG not available, skipping checks", "caps", caps, "method", det.Method())
	} else {
		for _, src := range m.sources {
			opts := cfg.FastOptions()
			if src.Direct {
				opts = cfg.DirectOptions()
			}
			sampler := cfg.NewSampler(src.Raw)

			res, err := sanity.Check(ctx, sampler, opts)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			stats := sampler.Stats()
			rep.Add(src.Name, res, err, &stats)

			if err != nil {
				m.logger.Warn("sanity check failed", "source", src.Name, "error", err)
			} else {
				m.logger.Debug("sanity check passed", "source", src.Name,
					"rounds", res.Rounds, "failures", res.Failures, "zero_words", res.ZeroWords)
			}
		}
	}

	m.passes.Add(1)
	m.last.Store(rep)
	if m.Metrics != nil {
		m.Metrics.Observe(rep)
	}
	m.logger.Info("monitor pass complete", "passed", rep.Passed(), "exit_code", rep.ExitCode())
	if m.OnReport != nil {
		m.OnReport(rep)
	}
	return rep, nil
}
