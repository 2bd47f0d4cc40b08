package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ErrExists is returned when a report with the same name is already on disk.
var ErrExists = errors.New("report already exists")

// Writer persists reports whole: readers of the directory never observe a
// partially written file.
type Writer struct {
	dir       string
	tailLines int
	logger    zerolog.Logger
}

// NewWriter creates a Writer for dir.
func NewWriter(dir string, tailLines int, logger zerolog.Logger) *Writer {
	return &Writer{dir: dir, tailLines: tailLines, logger: logger}
}

// Write renders r into a temporary file in the report directory, syncs it,
// and renames it into place. It returns the absolute path of the report.
func (w *Writer) Write(r Report) (string, error) {
	dir, err := filepath.Abs(w.dir)
	if err != nil {
		return "", fmt.Errorf("resolve report dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	final := filepath.Join(dir, r.FileName())
	if _, err := os.Stat(final); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, final)
	}

	tmp, err := os.CreateTemp(dir, ".summary-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(Render(r, w.tailLines)); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		cleanup()
		return "", fmt.Errorf("chmod report: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		cleanup()
		return "", fmt.Errorf("publish report: %w", err)
	}

	w.logger.Info().Str("target", r.Target).Str("path", final).Msg("report saved")
	return final, nil
}
