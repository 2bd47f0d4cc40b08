// Package config builds the process-wide LogSentry configuration.
//
// Configuration is read once at startup from an optional TOML or YAML file
// and then from the environment. The resulting value is never mutated.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Fixed pipeline bounds.
const (
	DefaultSampleLines     = 100
	DefaultTailLines       = 50
	DefaultPromptCharCap   = 4000
	DefaultListLimit       = 10
	DefaultTemperature     = 0.4
	DefaultMaxOutputTokens = 512
)

// Summarizer strategies.
const (
	SummarizerOllama = "ollama"
	SummarizerTool   = "tool"
)

// ErrNoTargets is returned by Validate when no container names are configured.
var ErrNoTargets = errors.New("at least one target container required")

// Config is the root configuration structure.
type Config struct {
	Ollama     OllamaConfig     `toml:"ollama" yaml:"ollama"`
	Scheduler  SchedulerConfig  `toml:"scheduler" yaml:"scheduler"`
	Reports    ReportsConfig    `toml:"reports" yaml:"reports"`
	Summarizer SummarizerConfig `toml:"summarizer" yaml:"summarizer"`
	OTEL       OTELConfig       `toml:"otel" yaml:"otel"`
	Log        LogConfig        `toml:"log" yaml:"log"`
}

// OllamaConfig holds inference backend settings.
type OllamaConfig struct {
	Host            string        `toml:"host" yaml:"host"`
	Model           string        `toml:"model" yaml:"model"`
	TimeoutStr      string        `toml:"timeout" yaml:"timeout"`
	Timeout         time.Duration `toml:"-" yaml:"-"`
	Temperature     float64       `toml:"temperature" yaml:"temperature"`
	MaxOutputTokens int           `toml:"max_output_tokens" yaml:"max_output_tokens"`
	Language        string        `toml:"language" yaml:"language"`
}

// SchedulerConfig holds cycle settings.
type SchedulerConfig struct {
	Targets         []string      `toml:"targets" yaml:"targets"`
	IntervalStr     string        `toml:"interval" yaml:"interval"`
	Interval        time.Duration `toml:"-" yaml:"-"`
	StartupDelayStr string        `toml:"startup_delay" yaml:"startup_delay"`
	StartupDelay    time.Duration `toml:"-" yaml:"-"`
}

// ReportsConfig holds report directory and sampling bounds.
type ReportsConfig struct {
	Dir           string `toml:"dir" yaml:"dir"`
	SampleLines   int    `toml:"sample_lines" yaml:"sample_lines"`
	TailLines     int    `toml:"tail_lines" yaml:"tail_lines"`
	PromptCharCap int    `toml:"prompt_char_cap" yaml:"prompt_char_cap"`
	ListLimit     int    `toml:"list_limit" yaml:"list_limit"`
}

// SummarizerConfig selects the summarization strategy.
type SummarizerConfig struct {
	Kind       string `toml:"kind" yaml:"kind"`
	Command    string `toml:"command" yaml:"command"`
	WorkDir    string `toml:"workdir" yaml:"workdir"`
	OutputGlob string `toml:"output_glob" yaml:"output_glob"`
}

// OTELConfig holds OpenTelemetry and metrics exposition settings.
type OTELConfig struct {
	Endpoint    string `toml:"endpoint" yaml:"endpoint"`
	Insecure    bool   `toml:"insecure" yaml:"insecure"`
	ServiceName string `toml:"service_name" yaml:"service_name"`
	MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Load builds the configuration from defaults, an optional file and the
// environment, in that order. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	cfg.Scheduler.Targets = normalizeTargets(cfg.Scheduler.Targets)

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator input
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Ollama.Host == "" {
		cfg.Ollama.Host = "http://ollama:11434"
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = "tinyllama:1.1b"
	}
	if cfg.Ollama.TimeoutStr == "" {
		cfg.Ollama.TimeoutStr = "180s"
	}
	if cfg.Ollama.Temperature == 0 {
		cfg.Ollama.Temperature = DefaultTemperature
	}
	if cfg.Ollama.MaxOutputTokens == 0 {
		cfg.Ollama.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.Ollama.Language == "" {
		cfg.Ollama.Language = "English"
	}
	if len(cfg.Scheduler.Targets) == 0 {
		cfg.Scheduler.Targets = []string{"moodle-app"}
	}
	if cfg.Scheduler.IntervalStr == "" {
		cfg.Scheduler.IntervalStr = "120s"
	}
	if cfg.Scheduler.StartupDelayStr == "" {
		cfg.Scheduler.StartupDelayStr = "10s"
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = "/reports"
	}
	if cfg.Reports.SampleLines == 0 {
		cfg.Reports.SampleLines = DefaultSampleLines
	}
	if cfg.Reports.TailLines == 0 {
		cfg.Reports.TailLines = DefaultTailLines
	}
	if cfg.Reports.PromptCharCap == 0 {
		cfg.Reports.PromptCharCap = DefaultPromptCharCap
	}
	if cfg.Reports.ListLimit == 0 {
		cfg.Reports.ListLimit = DefaultListLimit
	}
	if cfg.Summarizer.Kind == "" {
		cfg.Summarizer.Kind = SummarizerOllama
	}
	if cfg.Summarizer.OutputGlob == "" {
		cfg.Summarizer.OutputGlob = "reports/log_summary_*.md"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "logsentry"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// applyEnv overlays environment variables. Interval, timeout and startup
// delay are given in whole seconds, as in the container deployment.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	seconds := func(key string, dst *string) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", key, v, err)
		}
		*dst = (time.Duration(n) * time.Second).String()
		return nil
	}

	str("OLLAMA_HOST", &cfg.Ollama.Host)
	str("MODEL", &cfg.Ollama.Model)
	str("PROMPT_LANGUAGE", &cfg.Ollama.Language)
	str("REPORTS_DIR", &cfg.Reports.Dir)
	str("SUMMARIZER", &cfg.Summarizer.Kind)
	str("TOOL_COMMAND", &cfg.Summarizer.Command)
	str("TOOL_WORKDIR", &cfg.Summarizer.WorkDir)
	str("TOOL_OUTPUT_GLOB", &cfg.Summarizer.OutputGlob)
	str("METRICS_ADDR", &cfg.OTEL.MetricsAddr)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTEL.Endpoint)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if err := seconds("INTERVAL", &cfg.Scheduler.IntervalStr); err != nil {
		return err
	}
	if err := seconds("ANALYSIS_TIMEOUT", &cfg.Ollama.TimeoutStr); err != nil {
		return err
	}
	if err := seconds("STARTUP_DELAY", &cfg.Scheduler.StartupDelayStr); err != nil {
		return err
	}

	if v, ok := lookup("CONTAINER_NAMES"); ok && strings.TrimSpace(v) != "" {
		cfg.Scheduler.Targets = strings.Split(v, ",")
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Summarizer.Kind = strings.ToLower(cfg.Summarizer.Kind)
	return nil
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"interval", cfg.Scheduler.IntervalStr, &cfg.Scheduler.Interval},
		{"startup_delay", cfg.Scheduler.StartupDelayStr, &cfg.Scheduler.StartupDelay},
		{"timeout", cfg.Ollama.TimeoutStr, &cfg.Ollama.Timeout},
	}
	for _, f := range fields {
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// normalizeTargets trims names, drops blanks and removes duplicates while
// keeping the configured order.
func normalizeTargets(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Scheduler.Targets) == 0 {
		return ErrNoTargets
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive (got %s)", c.Scheduler.Interval)
	}
	if c.Scheduler.StartupDelay < 0 {
		return fmt.Errorf("scheduler: startup_delay must not be negative (got %s)", c.Scheduler.StartupDelay)
	}
	if c.Ollama.Timeout <= 0 {
		return fmt.Errorf("ollama: timeout must be positive (got %s)", c.Ollama.Timeout)
	}
	if c.Reports.SampleLines <= 0 || c.Reports.TailLines <= 0 || c.Reports.PromptCharCap <= 0 {
		return fmt.Errorf("reports: sample_lines, tail_lines and prompt_char_cap must be positive")
	}
	switch c.Summarizer.Kind {
	case SummarizerOllama:
	case SummarizerTool:
		if strings.TrimSpace(c.Summarizer.Command) == "" {
			return fmt.Errorf("summarizer: command required for kind %q", SummarizerTool)
		}
	default:
		return fmt.Errorf("summarizer: unknown kind %q", c.Summarizer.Kind)
	}
	return nil
}
