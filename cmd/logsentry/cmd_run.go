package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yairfalse/logsentry/internal/config"
	"github.com/yairfalse/logsentry/internal/daemon"
	"github.com/yairfalse/logsentry/internal/report"
	"github.com/yairfalse/logsentry/internal/runtime"
	"github.com/yairfalse/logsentry/internal/summarizer"
	"github.com/yairfalse/logsentry/internal/telemetry"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis daemon",
	Long: `Run LogSentry in daemon mode.

Every cycle probes each configured container, samples the last log lines
of the running ones, summarizes them and writes one report per container.
Stopped or missing containers are skipped with a warning.

Features:
- Ollama or external-tool summarization
- Reports that are written even when the analysis fails
- Prometheus metrics on /metrics, health on /health, /-/healthy, /-/ready
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  logsentry run                            # Run with environment config
  logsentry run --config logsentry.toml    # Load a config file first
  logsentry run --once                     # Single cycle, then exit`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single cycle without startup delay and exit")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := telemetry.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format, cfg.OTEL.ServiceName)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	provider, err := telemetry.NewProvider(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	docker, err := runtime.NewDocker(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Msg("cannot reach the container runtime")
		return err
	}
	defer func() { _ = docker.Close() }()

	summ := newSummarizer(ctx, cfg, logger)

	metrics, err := daemon.NewMetrics(provider.MeterProvider())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	d, err := daemon.NewDaemon(daemon.Config{
		Targets:         cfg.Scheduler.Targets,
		Model:           cfg.Ollama.Model,
		Interval:        cfg.Scheduler.Interval,
		StartupDelay:    cfg.Scheduler.StartupDelay,
		AnalysisTimeout: cfg.Ollama.Timeout,
		SampleLines:     cfg.Reports.SampleLines,
		ListLimit:       cfg.Reports.ListLimit,
	}, daemon.Dependencies{
		Prober:     docker,
		Sampler:    docker,
		Summarizer: summ,
		Writer:     report.NewWriter(cfg.Reports.Dir, cfg.Reports.TailLines, logger),
		Catalog:    report.NewCatalog(cfg.Reports.Dir),
		Metrics:    metrics,
		Tracer:     provider.Tracer(),
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	logger.Info().
		Str("version", version).
		Str("summarizer", cfg.Summarizer.Kind).
		Str("ollama_host", cfg.Ollama.Host).
		Str("model", cfg.Ollama.Model).
		Strs("targets", cfg.Scheduler.Targets).
		Dur("interval", cfg.Scheduler.Interval).
		Dur("analysis_timeout", cfg.Ollama.Timeout).
		Str("reports_dir", cfg.Reports.Dir).
		Msg("logsentry starting")

	if runOnce {
		d.RunCycle(ctx)
		logger.Info().Msg("single cycle complete, exiting")
		return nil
	}

	return serve(ctx, cfg, d, provider, logger)
}

func newSummarizer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) summarizer.Summarizer {
	if cfg.Summarizer.Kind == config.SummarizerTool {
		return summarizer.NewTool(summarizer.ToolOptions{
			Command:     cfg.Summarizer.Command,
			WorkDir:     cfg.Summarizer.WorkDir,
			OutputGlob:  cfg.Summarizer.OutputGlob,
			Host:        cfg.Ollama.Host,
			SampleLines: cfg.Reports.SampleLines,
		}, logger)
	}

	ollama := summarizer.NewOllama(summarizer.OllamaOptions{
		Host:            cfg.Ollama.Host,
		Temperature:     cfg.Ollama.Temperature,
		MaxOutputTokens: cfg.Ollama.MaxOutputTokens,
		Language:        cfg.Ollama.Language,
		PromptCharCap:   cfg.Reports.PromptCharCap,
	}, logger)

	// An unreachable backend at startup is not fatal: each analysis
	// degrades until it comes up.
	if err := ollama.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("ollama_host", cfg.Ollama.Host).Msg("inference backend not reachable yet")
	}
	return ollama
}

// serve runs the daemon, the optional metrics server and the signal
// handler as one run group. The first actor to return stops the others.
func serve(ctx context.Context, cfg *config.Config, d *daemon.Daemon, provider *telemetry.Provider, logger zerolog.Logger) error {
	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(ctx)
		}, func(error) {
			cancel()
		})
	}

	if cfg.OTEL.MetricsAddr != "" {
		srv, err := daemon.NewServer(cfg.OTEL.MetricsAddr, d, provider.Handler())
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.OTEL.MetricsAddr, err)
		}
		g.Add(func() error {
			logger.Info().Str("addr", srv.Addr()).Msg("metrics server listening")
			return srv.Serve()
		}, func(error) {
			if err := srv.Shutdown(); err != nil {
				logger.Warn().Err(err).Msg("metrics server shutdown")
			}
		})
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err := g.Run()

	var sig run.SignalError
	if errors.As(err, &sig) {
		logger.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	if err == nil {
		logger.Info().Msg("daemon stopped")
	}
	return err
}
