// Package daemon runs the analyze-and-report cycle over the configured
// targets.
package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/logsentry/internal/report"
	"github.com/yairfalse/logsentry/internal/runtime"
	"github.com/yairfalse/logsentry/internal/summarizer"
)

// Prober reports the lifecycle state of a target.
type Prober interface {
	Status(ctx context.Context, name string) runtime.Status
}

// Sampler returns the recent log text of a target. It never fails.
type Sampler interface {
	Sample(ctx context.Context, name string, maxLines int) string
}

// ReportWriter persists one report and returns its path.
type ReportWriter interface {
	Write(r report.Report) (string, error)
}

// ReportCatalog lists persisted reports.
type ReportCatalog interface {
	List(limit int) ([]report.Entry, error)
}

// Config holds daemon configuration.
type Config struct {
	Targets         []string
	Model           string
	Interval        time.Duration
	StartupDelay    time.Duration
	AnalysisTimeout time.Duration
	SampleLines     int
	ListLimit       int
}

// Dependencies are the collaborators of one pipeline instance. Metrics,
// Tracer and Now are optional.
type Dependencies struct {
	Prober     Prober
	Sampler    Sampler
	Summarizer summarizer.Summarizer
	Writer     ReportWriter
	Catalog    ReportCatalog
	Metrics    *Metrics
	Tracer     trace.Tracer
	Now        func() time.Time
}

// CycleResult is what happened to one target in one cycle. It is handed
// to the report writer and then dropped.
type CycleResult struct {
	Target     string
	Status     runtime.Status
	Sampled    bool
	LogSample  string
	Outcome    summarizer.Outcome
	ReportPath string
	WriteErr   error
}

// Daemon drives the cycle loop. Targets are processed one at a time.
type Daemon struct {
	cfg        Config
	prober     Prober
	sampler    Sampler
	summarizer summarizer.Summarizer
	writer     ReportWriter
	catalog    ReportCatalog
	metrics    *Metrics
	tracer     trace.Tracer
	now        func() time.Time
	logger     zerolog.Logger

	startTime  time.Time
	cycleCount atomic.Int64
	lastCycle  atomic.Int64
}

// NewDaemon creates a new daemon instance.
func NewDaemon(cfg Config, deps Dependencies, logger zerolog.Logger) (*Daemon, error) {
	if len(cfg.Targets) == 0 {
		return nil, errors.New("daemon: no targets")
	}
	if deps.Prober == nil || deps.Sampler == nil || deps.Summarizer == nil || deps.Writer == nil || deps.Catalog == nil {
		return nil, errors.New("daemon: prober, sampler, summarizer, writer and catalog are required")
	}

	d := &Daemon{
		cfg:        cfg,
		prober:     deps.Prober,
		sampler:    deps.Sampler,
		summarizer: deps.Summarizer,
		writer:     deps.Writer,
		catalog:    deps.Catalog,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		now:        deps.Now,
		logger:     logger,
		startTime:  time.Now(),
	}

	if d.metrics == nil {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, err
		}
		d.metrics = m
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("logsentry")
	}
	if d.now == nil {
		d.now = time.Now
	}

	return d, nil
}

// Start waits out the startup delay, then runs cycles until ctx is done,
// sleeping the configured interval after each one.
func (d *Daemon) Start(ctx context.Context) error {
	if d.cfg.StartupDelay > 0 {
		d.logger.Info().Dur("delay", d.cfg.StartupDelay).Msg("waiting before first cycle")
		if !sleep(ctx, d.cfg.StartupDelay) {
			return nil
		}
	}

	for {
		d.RunCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		d.logger.Info().Dur("interval", d.cfg.Interval).Msg("sleeping until next cycle")
		if !sleep(ctx, d.cfg.Interval) {
			return nil
		}
	}
}

// sleep returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunCycle processes every target once, then lists the catalog.
func (d *Daemon) RunCycle(ctx context.Context) []CycleResult {
	cycleID := uuid.NewString()
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "logsentry.cycle", trace.WithAttributes(
		attribute.String("cycle.id", cycleID),
		attribute.Int("cycle.targets", len(d.cfg.Targets)),
	))
	defer span.End()

	logger := d.logger.With().Str("cycle_id", cycleID).Logger()
	logger.Info().Ctx(ctx).Strs("targets", d.cfg.Targets).Msg("cycle started")

	results := make([]CycleResult, 0, len(d.cfg.Targets))
	for _, target := range d.cfg.Targets {
		if ctx.Err() != nil {
			logger.Info().Msg("cycle interrupted")
			break
		}
		results = append(results, d.processTarget(ctx, logger, target))
	}

	d.listReports(ctx, logger)

	d.cycleCount.Add(1)
	d.lastCycle.Store(time.Now().Unix())

	status := "complete"
	if ctx.Err() != nil {
		status = "interrupted"
	}
	d.metrics.RecordCycle(ctx, status, time.Since(start))

	logger.Info().
		Ctx(ctx).
		Int("reports", countReports(results)).
		Dur("duration", time.Since(start)).
		Msg("cycle finished")

	return results
}

func (d *Daemon) processTarget(ctx context.Context, logger zerolog.Logger, target string) CycleResult {
	ctx, span := d.tracer.Start(ctx, "logsentry.target", trace.WithAttributes(
		attribute.String("target", target),
	))
	defer span.End()

	res := CycleResult{Target: target}
	res.Status = d.prober.Status(ctx, target)
	span.SetAttributes(attribute.String("target.status", res.Status.Kind.String()))

	if !res.Status.Running() {
		res.Outcome = skipOutcome(res.Status)
		d.logSkip(ctx, logger, res.Status, target)
		d.metrics.RecordSkip(ctx, res.Status.Kind.String())
		return res
	}

	res.LogSample = d.sampler.Sample(ctx, target, d.cfg.SampleLines)
	res.Sampled = true

	started := time.Now()
	res.Outcome = d.summarizer.Summarize(ctx, summarizer.Request{
		Target:  target,
		Model:   d.cfg.Model,
		Logs:    res.LogSample,
		Timeout: d.cfg.AnalysisTimeout,
	})
	d.metrics.RecordAnalysis(ctx, res.Outcome, time.Since(started))

	if res.Outcome.Kind == summarizer.KindDegraded {
		span.AddEvent("analysis.degraded", trace.WithAttributes(
			attribute.String("reason", string(res.Outcome.Reason)),
		))
		logger.Warn().
			Ctx(ctx).
			Str("target", target).
			Str("reason", string(res.Outcome.Reason)).
			Str("detail", res.Outcome.Detail).
			Msg("analysis degraded, writing raw-log report")
	}

	res.ReportPath, res.WriteErr = d.writer.Write(report.Report{
		Target:    target,
		CreatedAt: d.now(),
		Status:    res.Status.String(),
		Model:     d.cfg.Model,
		Analysis:  res.Outcome.Analysis(),
		Logs:      res.LogSample,
	})
	if res.WriteErr != nil {
		span.SetStatus(codes.Error, res.WriteErr.Error())
		logger.Error().Ctx(ctx).Err(res.WriteErr).Str("target", target).Msg("report write failed")
		d.metrics.RecordReportWrite(ctx, "error")
		return res
	}
	d.metrics.RecordReportWrite(ctx, "success")

	return res
}

func skipOutcome(st runtime.Status) summarizer.Outcome {
	switch st.Kind {
	case runtime.StatusNotFound:
		return summarizer.Skipped(summarizer.ReasonNotFound, "container not found")
	case runtime.StatusProbeError:
		return summarizer.Skipped(summarizer.ReasonProbeError, st.Detail)
	default:
		return summarizer.Skipped(summarizer.ReasonNotRunning, st.State)
	}
}

func (d *Daemon) logSkip(ctx context.Context, logger zerolog.Logger, st runtime.Status, target string) {
	event := logger.Warn().Ctx(ctx).Str("target", target)
	switch st.Kind {
	case runtime.StatusNotFound:
		event.Msg("container not found, skipping")
	case runtime.StatusProbeError:
		event.Str("detail", st.Detail).Msg("status probe failed, skipping")
	default:
		event.Str("state", st.State).Msg("container not running, skipping")
	}
}

// listReports logs the most recent reports for operator visibility.
func (d *Daemon) listReports(ctx context.Context, logger zerolog.Logger) {
	entries, err := d.catalog.List(0)
	if err != nil {
		logger.Warn().Err(err).Msg("list reports")
		return
	}
	d.metrics.RecordReportsStored(ctx, len(entries))

	if len(entries) == 0 {
		return
	}
	if d.cfg.ListLimit > 0 && len(entries) > d.cfg.ListLimit {
		entries = entries[len(entries)-d.cfg.ListLimit:]
	}
	for _, e := range entries {
		logger.Info().Str("report", e.Name).Str("size", e.HumanSize()).Msg("recent report")
	}
}

func countReports(results []CycleResult) int {
	n := 0
	for _, r := range results {
		if r.ReportPath != "" {
			n++
		}
	}
	return n
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	h := HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Cycles: d.cycleCount.Load(),
	}
	if last := d.lastCycle.Load(); last > 0 {
		h.LastCycle = time.Unix(last, 0).UTC().Format(time.RFC3339)
	}
	return h
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status    string `json:"status"`
	Uptime    int64  `json:"uptime_seconds"`
	Cycles    int64  `json:"cycles"`
	LastCycle string `json:"last_cycle,omitempty"`
}

// CycleCount returns total cycles run
func (d *Daemon) CycleCount() int64 {
	return d.cycleCount.Load()
}

// Ready reports whether at least one cycle has completed.
func (d *Daemon) Ready() bool {
	return d.cycleCount.Load() > 0
}
