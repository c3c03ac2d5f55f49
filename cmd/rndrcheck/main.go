// rndrcheck reports whether the AArch64 hardware RNG is usable and runs the
// acceptance harness against it.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"armrng/internal/armcap"
	"armrng/internal/config"
	"armrng/internal/logging"
	"armrng/internal/metrics"
	"armrng/internal/monitor"
	"armrng/internal/report"
)

// exitUsage is returned for bad flags, commands and configuration.
const exitUsage = 64

func main() {
	if armcap.ProbeChild() {
		return
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, armcap.Default()))
}

type app struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	detector    *armcap.Detector
	cfgPath     string
	metricsAddr string
	cfg         *config.Config
	format      report.Format
	logger      *logging.Logger

	rounds  int
	health  bool
	verbose bool
}

func run(args []string, stdout, stderr io.Writer, det *armcap.Detector) int {
	fs := flag.NewFlagSet("rndrcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }

	configPath := fs.String("config", "", "path to config file")
	format := fs.String("format", "text", "output format: text, json or yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	rounds := fs.Int("rounds", 0, "override the number of sanity rounds")
	health := fs.Bool("health", false, "fail on continuous health test failures")
	source := fs.String("source", "all", "sources to check: rndr, rndrrs or all")
	metricsAddr := fs.String("metrics-addr", "", "monitor only: serve /metrics and /healthz on this address")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return exitUsage
	}
	if fs.NArg() < 1 {
		usage(stderr)
		return exitUsage
	}

	a := &app{stdin: os.Stdin, stdout: stdout, stderr: stderr, detector: det, cfgPath: *configPath, metricsAddr: *metricsAddr}

	cmd := fs.Arg(0)
	switch cmd {
	case "help":
		usage(stdout)
		return 0
	case "schema":
		_, _ = stdout.Write(report.Schema())
		return 0
	case "config":
		return a.cmdConfig(fs.Args()[1:])
	case "validate":
		return a.cmdValidate(fs.Args()[1:])
	case "caps", "check", "monitor":
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		usage(stderr)
		return exitUsage
	}

	f, err := report.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	a.format = f

	a.rounds, a.health, a.verbose = *rounds, *health, *verbose
	if err := a.setup(); err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return exitUsage
	}
	defer a.logger.Close()

	switch cmd {
	case "caps":
		return a.cmdCaps()
	case "check":
		sources, err := selectSources(*source)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		return a.cmdCheck(sources)
	default:
		return a.cmdMonitor()
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `rndrcheck - AArch64 hardware RNG checker

Usage: rndrcheck [options] <command> [args]

Commands:
  caps               Show the detected capability flag
  check              Run the sanity harness against RNDR and RNDRRS
  monitor            Run the sanity harness periodically, reloading config
  config init [path] Write the default configuration
  schema             Print the JSON Schema of json reports
  validate <file>    Check a json report against the schema ("-" reads stdin)
  help               Show this help message

Options:
  -config <path>     Path to config file (default: ~/.config/armrng/config.toml)
  -format <fmt>      Report format: text, json or yaml (default: text)
  -source <name>     check only: rndr, rndrrs or all (default: all)
  -rounds <n>        Override sanity.rounds
  -health            Fail on continuous health test failures
  -metrics-addr <a>  monitor only: serve /metrics and /healthz
  -verbose           Enable debug logging

Exit status:
  0 all checks passed, 1 hardware RNG absent, 2 short buffer,
  3 repeated round, 4 uniform tail, 5 zero-word ceiling,
  6 failure floor, 7 health test, 64 usage or config error`)
}

// setup loads and validates the configuration, applies flag overrides and
// installs the process logger.
func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	lc, err := cfg.LoggerConfig()
	if err != nil {
		return err
	}
	if strings.EqualFold(lc.Output, "stderr") {
		lc.Writer = a.stderr
	}
	l, err := logging.New(lc)
	if err != nil {
		return err
	}
	logging.SetDefault(l)
	a.logger = l
	l.Debug("logger configured", "log_level", logging.LevelString(lc.Level), "output", lc.Output)
	if a.detector.Logger == nil {
		a.detector.Logger = l.WithComponent("armcap").Logger
	}
	return nil
}

// applyFlags lets command-line options win over the file and environment.
func (a *app) applyFlags(cfg *config.Config) {
	if a.rounds > 0 {
		cfg.Sanity.Rounds = a.rounds
	}
	if a.health {
		cfg.Sanity.HealthTests = true
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
}

// write renders r. JSON output is checked against the schema first so a
// malformed report never reaches consumers.
func (a *app) write(r *report.Report) int {
	var buf bytes.Buffer
	if err := report.Write(&buf, r, a.format); err != nil {
		fmt.Fprintf(a.stderr, "Error writing report: %v\n", err)
		return 1
	}
	if a.format == report.FormatJSON {
		if err := report.Validate(buf.Bytes()); err != nil {
			fmt.Fprintf(a.stderr, "Error writing report: %v\n", err)
			return 1
		}
	}
	if _, err := a.stdout.Write(buf.Bytes()); err != nil {
		fmt.Fprintf(a.stderr, "Error writing report: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) cmdValidate(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.stderr, "Usage: rndrcheck validate <file|->")
		return exitUsage
	}

	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(a.stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	if err := report.Validate(data); err != nil {
		fmt.Fprintf(a.stderr, "Invalid report: %v\n", err)
		return 1
	}
	fmt.Fprintln(a.stdout, "Report is valid")
	return 0
}

func (a *app) cmdCaps() int {
	r := report.New(a.detector.Detect(), a.detector.Method())
	if code := a.write(r); code != 0 {
		return code
	}
	return r.ExitCode()
}

func selectSources(name string) ([]monitor.Source, error) {
	all := monitor.DefaultSources()
	switch strings.ToLower(name) {
	case "all":
		return all, nil
	case "rndr":
		return all[:1], nil
	case "rndrrs":
		return all[1:], nil
	}
	return nil, fmt.Errorf("unknown source %q", name)
}

func (a *app) cmdCheck(sources []monitor.Source) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := monitor.New(a.cfg, sources, a.logger.WithComponent("sanity").Logger)
	m.Detector = a.detector
	r, err := m.RunOnce(ctx)
	if err != nil {
		fmt.Fprintf(a.stderr, "Interrupted: %v\n", err)
		return 1
	}
	if code := a.write(r); code != 0 {
		return code
	}
	return r.ExitCode()
}

func (a *app) cmdMonitor() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := a.logger.WithComponent("monitor").Logger
	m := monitor.New(a.cfg, monitor.DefaultSources(), log)
	m.Detector = a.detector
	m.OnReport = func(r *report.Report) { a.write(r) }

	if a.metricsAddr != "" {
		m.Metrics = metrics.NewRNGMetrics(metrics.NewRegistry("armrng"))
		srv, err := serveMetrics(a.metricsAddr, m.Metrics.Registry(), m.HealthHandler(), log)
		if err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
			return exitUsage
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	loader := config.NewLoader(a.cfgPath)
	defer loader.Close()
	loader.OnChange(func(cfg *config.Config) {
		a.applyFlags(cfg)
		m.Update(cfg)
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config hot reload disabled", "path", loader.Path(), "error", err)
	} else {
		go logReloadErrors(ctx, loader, log)
	}

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// serveMetrics exposes /metrics and /healthz on addr.
func serveMetrics(addr string, reg *metrics.Registry, health http.Handler, log *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.HTTPHandler())
	mux.Handle("/healthz", health)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

func logReloadErrors(ctx context.Context, loader *config.Loader, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-loader.Errors():
			log.Warn("config reload rejected", "error", err)
		}
	}
}

func (a *app) cmdConfig(args []string) int {
	if len(args) < 1 || args[0] != "init" {
		fmt.Fprintln(a.stderr, "Usage: rndrcheck config init [path]")
		return exitUsage
	}
	path := a.cfgPath
	if len(args) >= 2 {
		path = args[1]
	}
	if path == "" {
		path = config.ConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(a.stderr, "Config already exists: %s\n", path)
		return exitUsage
	}
	if err := config.Save(config.DefaultConfig(), path); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(a.stdout, "Config written to: %s\n", path)
	return 0
}
