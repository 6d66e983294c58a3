package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/dashboard"
	"github.com/torosent/crankbench/internal/httpclient"
	"github.com/torosent/crankbench/internal/logging"
	"github.com/torosent/crankbench/internal/output"
	"github.com/torosent/crankbench/internal/runner"
	"github.com/torosent/crankbench/internal/stats"
	"github.com/torosent/crankbench/internal/threshold"
	"github.com/torosent/crankbench/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// errThresholdsFailed makes the process exit non-zero after the report is printed.
var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewWithWriter(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.CPU > 0 {
		prev := runtime.GOMAXPROCS(cfg.CPU)
		defer runtime.GOMAXPROCS(prev)
	}

	// Everything that reads files or parses expressions happens before load starts.
	plan, err := buildPlan(cfg)
	if err != nil {
		return err
	}
	body, err := buildBody(cfg)
	if err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	policy, err := lagPolicy(cfg, plan)
	if err != nil {
		return err
	}

	runID := output.NewRunID()
	provider, err := tracing.Init(ctx, cfg.Tracing, traceRun(cfg, runID, plan, policy))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	client := httpclient.NewClient(cfg.Timeout, cfg.KeepAlive, httpclient.WithTracing(provider))
	defer client.CloseIdleConnections()

	engine := stats.NewEngine(cfg.Concurrency)

	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, engine, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(engine, dashboardConfig(cfg, policy), cancelRun)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.YAMLOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(engine, progressInterval, stdout)
		progress.Start()
	}

	r := runner.New(runner.Options{
		Plan:        plan,
		Workers:     cfg.Concurrency,
		Buffer:      cfg.Buffer,
		LagPolicy:   policy,
		Stats:       engine,
		Client:      client,
		Headers:     makeHeaders(cfg.Headers),
		ContentType: cfg.ContentType,
		Body:        body,
		Seed:        cfg.Seed,
		Logger:      logger,
		LogErrors:   cfg.LogErrors,
		Tracing:     provider,
	})

	startedAt := time.Now().UTC()
	result, runErr := r.Run(runCtx)

	if progress != nil {
		progress.Stop()
	}
	if dash != nil {
		dash.Stop()
	}
	if runErr != nil {
		return runErr
	}
	if ctx.Err() != nil {
		logger.Info("interrupted, reporting partial results", zap.Uint64("published", result.Published))
	}

	report := engine.Report()
	var results []threshold.Result
	if len(thresholds) > 0 {
		results = threshold.NewEvaluator(thresholds).Evaluate(report)
	}

	switch {
	case cfg.JSONOutput:
		err = output.PrintJSONReport(stdout, runReport(cfg, runID, startedAt, result, report, results))
	case cfg.YAMLOutput:
		err = output.PrintYAMLReport(stdout, runReport(cfg, runID, startedAt, result, report, results))
	default:
		output.PrintReport(stdout, report)
		output.PrintThresholds(stdout, results)
	}
	if err != nil {
		return err
	}

	if !threshold.AllPassed(results) {
		return errThresholdsFailed
	}
	return nil
}

func runReport(cfg *config.Config, runID string, startedAt time.Time, result runner.Result, report stats.Report, results []threshold.Result) output.RunReport {
	return output.RunReport{
		RunID:      runID,
		Target:     targetLabel(cfg),
		StartedAt:  startedAt,
		Published:  result.Published,
		Lagged:     result.Lagged,
		Report:     report,
		Thresholds: results,
	}
}

// serveMetrics binds addr synchronously so a bad address fails before the run,
// then serves /metrics until the returned stop function is called.
func serveMetrics(addr string, engine *stats.Engine, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", stats.Handler(engine))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
