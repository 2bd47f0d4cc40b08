package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/yairfalse/logsentry/internal/report"
	"github.com/yairfalse/logsentry/internal/runtime"
	"github.com/yairfalse/logsentry/internal/summarizer"
)

type fakeProber map[string]runtime.Status

func (f fakeProber) Status(_ context.Context, name string) runtime.Status {
	if st, ok := f[name]; ok {
		return st
	}
	return runtime.NotFound()
}

type fakeSampler struct {
	mu    sync.Mutex
	logs  map[string]string
	calls []string
}

func (f *fakeSampler) Sample(_ context.Context, name string, _ int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if text, ok := f.logs[name]; ok {
		return text
	}
	return "2026-10-19T10:00:00Z default line\n"
}

type fakeSummarizer struct {
	mu       sync.Mutex
	outcomes map[string]summarizer.Outcome
	calls    []summarizer.Request
}

func (f *fakeSummarizer) Summarize(_ context.Context, req summarizer.Request) summarizer.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if out, ok := f.outcomes[req.Target]; ok {
		return out
	}
	return summarizer.Success("all good")
}

type failingWriter struct {
	inner  ReportWriter
	target string
}

func (f failingWriter) Write(r report.Report) (string, error) {
	if r.Target == f.target {
		return "", errors.New("disk full")
	}
	return f.inner.Write(r)
}

// tickingClock advances one second per call so consecutive reports for a
// target never share a file name.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 10, 19, 10, 0, 0, 0, time.Local)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func testConfig(targets ...string) Config {
	return Config{
		Targets:         targets,
		Model:           "tinyllama:1.1b",
		Interval:        time.Hour,
		AnalysisTimeout: time.Second,
		SampleLines:     100,
		ListLimit:       10,
	}
}

type harness struct {
	dir     string
	daemon  *Daemon
	sampler *fakeSampler
	summ    *fakeSummarizer
	logs    *bytes.Buffer
}

func newHarness(t *testing.T, cfg Config, prober Prober, summ summarizer.Summarizer) *harness {
	t.Helper()
	dir := t.TempDir()
	logs := &bytes.Buffer{}
	logger := zerolog.New(logs)

	sampler := &fakeSampler{logs: map[string]string{}}
	fs, _ := summ.(*fakeSummarizer)

	metrics, err := NewMetrics(noop.NewMeterProvider())
	require.NoError(t, err)

	d, err := NewDaemon(cfg, Dependencies{
		Prober:     prober,
		Sampler:    sampler,
		Summarizer: summ,
		Writer:     report.NewWriter(dir, 50, logger),
		Catalog:    report.NewCatalog(dir),
		Metrics:    metrics,
		Now:        tickingClock(),
	}, logger)
	require.NoError(t, err)

	return &harness{dir: dir, daemon: d, sampler: sampler, summ: fs, logs: logs}
}

func (h *harness) reportsFor(t *testing.T, target string) []report.Entry {
	t.Helper()
	entries, err := report.NewCatalog(h.dir).ListTarget(target, 0)
	require.NoError(t, err)
	return entries
}

func readSections(t *testing.T, path string) (string, []string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	a := strings.Index(text, "=== ANALYSIS ===\n")
	r := strings.Index(text, "=== RAW LOGS")
	require.GreaterOrEqual(t, a, 0)
	require.Greater(t, r, a)

	raw := text[r:]
	raw = raw[strings.Index(raw, "\n")+1:]
	return strings.TrimSuffix(text[a+len("=== ANALYSIS ===\n"):r], "\n\n"), report.Tail(raw, 1<<20)
}

func lines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "2026-10-19T10:%02d:%02d.000000000Z message %d\n", i/60, i%60, i)
	}
	return b.String()
}

func TestNewDaemon_Validation(t *testing.T) {
	_, err := NewDaemon(Config{}, Dependencies{}, zerolog.Nop())
	require.Error(t, err)

	_, err = NewDaemon(testConfig("svc-a"), Dependencies{Prober: fakeProber{}}, zerolog.Nop())
	require.Error(t, err)
}

func TestRunCycle_NonRunningTargetsProduceNoReports(t *testing.T) {
	prober := fakeProber{
		"stopped": runtime.NotRunning("exited"),
		"paused":  runtime.NotRunning("paused"),
		"broken":  runtime.ProbeError("permission denied"),
	}
	h := newHarness(t, testConfig("stopped", "paused", "broken", "svc-c"), prober, &fakeSummarizer{})

	results := h.daemon.RunCycle(context.Background())

	require.Len(t, results, 4)
	for _, r := range results {
		assert.False(t, r.Sampled, r.Target)
		assert.Equal(t, summarizer.KindSkipped, r.Outcome.Kind, r.Target)
		assert.Empty(t, r.ReportPath)
		assert.Empty(t, h.reportsFor(t, r.Target), r.Target)
	}
	assert.Empty(t, h.sampler.calls)
	assert.Empty(t, h.summ.calls)

	assert.Equal(t, summarizer.ReasonNotFound, results[3].Outcome.Reason)
	assert.Equal(t, summarizer.ReasonProbeError, results[2].Outcome.Reason)
	assert.Equal(t, summarizer.ReasonNotRunning, results[0].Outcome.Reason)
}

func TestRunCycle_RunningTargetsAlwaysGetOneReport(t *testing.T) {
	prober := fakeProber{
		"svc-a": runtime.Running(),
		"svc-b": runtime.Running(),
		"svc-d": runtime.Running(),
	}
	summ := &fakeSummarizer{outcomes: map[string]summarizer.Outcome{
		"svc-b": summarizer.Degraded(summarizer.ReasonTimeout, "too slow"),
		"svc-d": summarizer.Degraded(summarizer.ReasonEmptyResponse, "empty response"),
	}}
	h := newHarness(t, testConfig("svc-a", "svc-b", "svc-d"), prober, summ)

	for cycle := 1; cycle <= 3; cycle++ {
		h.daemon.RunCycle(context.Background())
		for _, target := range []string{"svc-a", "svc-b", "svc-d"} {
			assert.Len(t, h.reportsFor(t, target), cycle, "%s after cycle %d", target, cycle)
		}
	}
	assert.Equal(t, int64(3), h.daemon.CycleCount())
}

func TestRunCycle_PassesRequestFields(t *testing.T) {
	h := newHarness(t, testConfig("svc-a"), fakeProber{"svc-a": runtime.Running()}, &fakeSummarizer{})
	h.sampler.logs["svc-a"] = "hello\n"

	h.daemon.RunCycle(context.Background())

	require.Len(t, h.summ.calls, 1)
	req := h.summ.calls[0]
	assert.Equal(t, "svc-a", req.Target)
	assert.Equal(t, "tinyllama:1.1b", req.Model)
	assert.Equal(t, "hello\n", req.Logs)
	assert.Equal(t, time.Second, req.Timeout)
}

func TestRunCycle_ReportHeader(t *testing.T) {
	h := newHarness(t, testConfig("svc-a"), fakeProber{"svc-a": runtime.Running()}, &fakeSummarizer{})

	results := h.daemon.RunCycle(context.Background())
	require.Len(t, results, 1)

	data, err := os.ReadFile(results[0].ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Container status: running\n")
	assert.Contains(t, string(data), "Model: tinyllama:1.1b\n")
	assert.Equal(t, "summary_svc-a_20261019_100001.txt", filepath.Base(results[0].ReportPath))
}

func TestRunCycle_WriteFailureDoesNotAffectOtherTargets(t *testing.T) {
	dir := t.TempDir()
	prober := fakeProber{"svc-a": runtime.Running(), "svc-b": runtime.Running()}

	d, err := NewDaemon(testConfig("svc-a", "svc-b"), Dependencies{
		Prober:     prober,
		Sampler:    &fakeSampler{},
		Summarizer: &fakeSummarizer{},
		Writer:     failingWriter{inner: report.NewWriter(dir, 50, zerolog.Nop()), target: "svc-a"},
		Catalog:    report.NewCatalog(dir),
		Now:        tickingClock(),
	}, zerolog.Nop())
	require.NoError(t, err)

	results := d.RunCycle(context.Background())

	require.Len(t, results, 2)
	assert.Error(t, results[0].WriteErr)
	assert.NoError(t, results[1].WriteErr)
	assert.FileExists(t, results[1].ReportPath)
}

func TestRunCycle_StopsOnCancelledContext(t *testing.T) {
	h := newHarness(t, testConfig("svc-a", "svc-b"), fakeProber{"svc-a": runtime.Running(), "svc-b": runtime.Running()}, &fakeSummarizer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := h.daemon.RunCycle(ctx)
	assert.Empty(t, results)
	assert.Empty(t, h.reportsFor(t, "svc-a"))
}

// The scenarios below drive the real Ollama client against a fake backend.

func newOllama(host string) *summarizer.Ollama {
	return summarizer.NewOllama(summarizer.OllamaOptions{
		Host:            host,
		Temperature:     0.4,
		MaxOutputTokens: 512,
		Language:        "English",
		PromptCharCap:   4000,
	}, zerolog.Nop())
}

func TestScenario_SuccessfulAnalysis(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "ok"})
	}))
	defer backend.Close()

	h := newHarness(t, testConfig("svc-a"), fakeProber{"svc-a": runtime.Running()}, newOllama(backend.URL))

	results := h.daemon.RunCycle(context.Background())
	require.Len(t, results, 1)
	require.NoError(t, results[0].WriteErr)

	analysis, _ := readSections(t, results[0].ReportPath)
	assert.Equal(t, "ok", analysis)
}

func TestScenario_TimeoutStillWritesReport(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer backend.Close()

	cfg := testConfig("svc-b")
	cfg.AnalysisTimeout = 50 * time.Millisecond
	h := newHarness(t, cfg, fakeProber{"svc-b": runtime.Running()}, newOllama(backend.URL))
	h.sampler.logs["svc-b"] = lines(10)

	results := h.daemon.RunCycle(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, summarizer.ReasonTimeout, results[0].Outcome.Reason)

	analysis, raw := readSections(t, results[0].ReportPath)
	assert.Contains(t, analysis, "timeout")
	assert.NotEmpty(t, raw)
}

func TestScenario_NotFoundIsWarned(t *testing.T) {
	h := newHarness(t, testConfig("svc-c"), fakeProber{}, &fakeSummarizer{})

	h.daemon.RunCycle(context.Background())

	assert.Empty(t, h.reportsFor(t, "svc-c"))
	assert.Contains(t, h.logs.String(), `"level":"warn"`)
	assert.Contains(t, h.logs.String(), "container not found")
	assert.Contains(t, h.logs.String(), `"target":"svc-c"`)
}

func TestScenario_BackendUnreachable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	h := newHarness(t, testConfig("svc-a"), fakeProber{"svc-a": runtime.Running()}, newOllama(url))
	h.sampler.logs["svc-a"] = lines(120)

	results := h.daemon.RunCycle(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, summarizer.ReasonTransport, results[0].Outcome.Reason)

	analysis, raw := readSections(t, results[0].ReportPath)
	assert.Contains(t, analysis, "error calling the inference backend")
	require.Len(t, raw, 50)
	assert.True(t, strings.HasSuffix(raw[0], "message 70"))
	assert.True(t, strings.HasSuffix(raw[49], "message 119"))
}

func TestDaemon_Start(t *testing.T) {
	cfg := testConfig("svc-a")
	cfg.Interval = 20 * time.Millisecond
	h := newHarness(t, cfg, fakeProber{"svc-a": runtime.Running()}, &fakeSummarizer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.daemon.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return h.daemon.CycleCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func TestDaemon_StartCancelledDuringStartupDelay(t *testing.T) {
	cfg := testConfig("svc-a")
	cfg.StartupDelay = time.Hour
	h := newHarness(t, cfg, fakeProber{"svc-a": runtime.Running()}, &fakeSummarizer{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, h.daemon.Start(ctx))
	assert.Equal(t, int64(0), h.daemon.CycleCount())
	assert.False(t, h.daemon.Ready())
}

func TestDaemon_Health(t *testing.T) {
	h := newHarness(t, testConfig("svc-a"), fakeProber{}, &fakeSummarizer{})

	health := h.daemon.Health()
	assert.Equal(t, "healthy", health.Status)
	assert.Empty(t, health.LastCycle)

	h.daemon.RunCycle(context.Background())

	health = h.daemon.Health()
	assert.Equal(t, int64(1), health.Cycles)
	assert.NotEmpty(t, health.LastCycle)
	assert.GreaterOrEqual(t, health.Uptime, int64(0))
}
