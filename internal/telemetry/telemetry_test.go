package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yairfalse/logsentry/internal/config"
)

func TestNewProvider_Local(t *testing.T) {
	cfg := config.OTELConfig{ServiceName: "test-logsentry"}

	p, err := NewProvider(context.Background(), cfg, "test")
	require.NoError(t, err)
	require.NotNil(t, p)
	defer func() { _ = p.Shutdown(context.Background()) }()

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.MeterProvider())

	counter, err := p.MeterProvider().Meter("test").Int64Counter("logsentry.test.events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "logsentry_test_events_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewProvider_WithEndpoint(t *testing.T) {
	cfg := config.OTELConfig{
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "test-logsentry",
	}

	// exporter setup is lazy; no collector needs to be running
	p, err := NewProvider(context.Background(), cfg, "test")
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "info", "json", "logsentry")
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("target", "svc-a").Msg("report saved")

	var event map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event))
	assert.Equal(t, "report saved", event["message"])
	assert.Equal(t, "svc-a", event["target"])
	assert.Equal(t, "logsentry", event["service"])
	assert.Equal(t, "info", event["level"])
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(io.Discard, "loud", "json", "logsentry")
	require.Error(t, err)
}

func TestOTELHook_AddsTraceIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "cycle")
	defer span.End()

	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "debug", "json", "logsentry")
	require.NoError(t, err)

	logger.Info().Ctx(ctx).Msg("with span")

	var event map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event))
	assert.Equal(t, span.SpanContext().TraceID().String(), event["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), event["span_id"])
}
