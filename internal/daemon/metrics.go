package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/logsentry/internal/summarizer"
)

// Metrics holds operational metrics using OTEL semantic conventions
type Metrics struct {
	cycles           metric.Int64Counter
	cycleDuration    metric.Float64Histogram
	targetsSkipped   metric.Int64Counter
	analyses         metric.Int64Counter
	analysisDuration metric.Float64Histogram
	reportsWritten   metric.Int64Counter
	reportsStored    metric.Int64Gauge
}

// NewMetrics creates daemon metrics on the given provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("logsentry.daemon")

	cycles, err := meter.Int64Counter(
		"logsentry.daemon.cycles",
		metric.WithDescription("Number of analysis cycles run"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"logsentry.daemon.cycle.duration",
		metric.WithDescription("Duration of a full cycle over all targets"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	targetsSkipped, err := meter.Int64Counter(
		"logsentry.targets.skipped",
		metric.WithDescription("Targets skipped because they were not running"),
		metric.WithUnit("{target}"),
	)
	if err != nil {
		return nil, err
	}

	analyses, err := meter.Int64Counter(
		"logsentry.analyses",
		metric.WithDescription("Summarization calls by outcome"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		return nil, err
	}

	analysisDuration, err := meter.Float64Histogram(
		"logsentry.analysis.duration",
		metric.WithDescription("Duration of summarization calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	reportsWritten, err := meter.Int64Counter(
		"logsentry.reports.written",
		metric.WithDescription("Report write attempts"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, err
	}

	reportsStored, err := meter.Int64Gauge(
		"logsentry.reports.stored",
		metric.WithDescription("Reports present in the report directory"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cycles:           cycles,
		cycleDuration:    cycleDuration,
		targetsSkipped:   targetsSkipped,
		analyses:         analyses,
		analysisDuration: analysisDuration,
		reportsWritten:   reportsWritten,
		reportsStored:    reportsStored,
	}, nil
}

// RecordCycle records a finished cycle.
func (m *Metrics) RecordCycle(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.cycles.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordSkip records a target skipped for the given status kind.
func (m *Metrics) RecordSkip(ctx context.Context, status string) {
	m.targetsSkipped.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("target.status", status),
		),
	)
}

// RecordAnalysis records one summarization outcome.
func (m *Metrics) RecordAnalysis(ctx context.Context, out summarizer.Outcome, d time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("outcome", out.Kind.String()),
	}
	if out.Reason != "" {
		attrs = append(attrs, attribute.String("reason", string(out.Reason)))
	}

	m.analyses.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.analysisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("outcome", out.Kind.String()),
		),
	)
}

// RecordReportWrite records a report write with status
func (m *Metrics) RecordReportWrite(ctx context.Context, status string) {
	m.reportsWritten.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
}

// RecordReportsStored records the size of the report catalog.
func (m *Metrics) RecordReportsStored(ctx context.Context, count int) {
	m.reportsStored.Record(ctx, int64(count))
}
