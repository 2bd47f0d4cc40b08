package summarizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// minToolStdout is the shortest stdout accepted as an analysis when the
// tool wrote no output file.
const minToolStdout = 10

// ToolOptions configures an external analyzer command.
type ToolOptions struct {
	// Command is split on whitespace. Tokens may contain the placeholders
	// {target}, {model}, {host}, {lines} and {timeout} (whole seconds).
	Command     string
	WorkDir     string
	OutputGlob  string
	Host        string
	SampleLines int
}

// Tool runs an external analyzer and harvests the newest file it writes.
type Tool struct {
	opts   ToolOptions
	logger zerolog.Logger
}

// NewTool creates a Tool summarizer.
func NewTool(opts ToolOptions, logger zerolog.Logger) *Tool {
	return &Tool{opts: opts, logger: logger}
}

// Summarize runs the analyzer under req.Timeout. The tool reads the
// container logs itself; req.Logs is not passed to it.
func (t *Tool) Summarize(ctx context.Context, req Request) Outcome {
	args := t.expand(req)
	if len(args) == 0 {
		return Degraded(ReasonToolFailed, "no analyzer command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	// #nosec G204 -- command comes from operator configuration
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = t.opts.WorkDir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Degraded(ReasonTimeout, fmt.Sprintf("timeout reached after %s waiting for the analyzer", req.Timeout))
	}

	if content, path, ok := t.harvest(started); ok {
		t.logger.Debug().Str("target", req.Target).Str("file", path).Msg("harvested analyzer output")
		return Success(content)
	}

	if out := stdout.String(); len(out) > minToolStdout {
		return Success(out)
	}

	if runErr != nil {
		return Degraded(ReasonToolFailed, fmt.Sprintf("%v: %s", runErr, strings.TrimSpace(stderr.String())))
	}
	return Degraded(ReasonEmptyResponse, "analyzer completed without output")
}

func (t *Tool) expand(req Request) []string {
	r := strings.NewReplacer(
		"{target}", req.Target,
		"{model}", req.Model,
		"{host}", t.opts.Host,
		"{lines}", strconv.Itoa(t.opts.SampleLines),
		"{timeout}", strconv.Itoa(int(req.Timeout/time.Second)),
	)
	fields := strings.Fields(t.opts.Command)
	for i, f := range fields {
		fields[i] = r.Replace(f)
	}
	return fields
}

// harvest reads and removes the newest output file written since the
// analyzer started. Files older than that belong to an earlier run.
func (t *Tool) harvest(since time.Time) (string, string, bool) {
	if t.opts.OutputGlob == "" {
		return "", "", false
	}
	pattern := t.opts.OutputGlob
	if !filepath.IsAbs(pattern) && t.opts.WorkDir != "" {
		pattern = filepath.Join(t.opts.WorkDir, pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", "", false
	}

	var newest string
	var newestMod time.Time
	cutoff := since.Add(-time.Second)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() || info.ModTime().Before(cutoff) {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = m, info.ModTime()
		}
	}
	if newest == "" {
		return "", "", false
	}

	data, err := os.ReadFile(newest) // #nosec G304 -- path matched operator glob
	if err != nil {
		t.logger.Warn().Err(err).Str("file", newest).Msg("read analyzer output")
		return "", "", false
	}
	if err := os.Remove(newest); err != nil {
		t.logger.Warn().Err(err).Str("file", newest).Msg("remove analyzer output")
	}
	return string(data), newest, true
}
