// Package report renders analysis reports to disk and lists them back.
//
// The report directory is the only index: one file per report, named
// summary_<target>_<YYYYMMDD_HHMMSS>.txt. Written reports are never edited
// or deleted.
package report

import (
	"fmt"
	"strings"
	"time"
)

const (
	filePrefix   = "summary_"
	fileSuffix   = ".txt"
	stampLayout  = "20060102_150405"
	headerRule   = "=================================================="
	sectionAnaly = "=== ANALYSIS ==="
)

// Report is one analysis of one target at one point in time.
type Report struct {
	Target    string
	CreatedAt time.Time
	Status    string
	Model     string
	Analysis  string
	Logs      string
}

// FileName returns the report's identity on disk.
func (r Report) FileName() string {
	return FileName(r.Target, r.CreatedAt)
}

// FileName builds summary_<target>_<YYYYMMDD_HHMMSS>.txt. Path separators
// in the target are replaced so the report stays inside its directory.
func FileName(target string, at time.Time) string {
	safe := strings.NewReplacer("/", "_", `\`, "_").Replace(target)
	return filePrefix + safe + "_" + at.Format(stampLayout) + fileSuffix
}

// Render lays out the report: metadata header, ANALYSIS section, then the
// last tailLines lines of the raw sample in their original order.
func Render(r Report, tailLines int) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "=== LogSentry - log analysis for %s ===\n", r.Target)
	fmt.Fprintf(&b, "Timestamp: %s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Container status: %s\n", r.Status)
	fmt.Fprintf(&b, "Model: %s\n", r.Model)
	b.WriteString(headerRule + "\n\n")

	b.WriteString(sectionAnaly + "\n")
	b.WriteString(r.Analysis + "\n\n")

	fmt.Fprintf(&b, "=== RAW LOGS (last %d lines) ===\n", tailLines)
	for _, line := range Tail(r.Logs, tailLines) {
		b.WriteString(line + "\n")
	}

	return []byte(b.String())
}

// Tail returns the last n lines of text, oldest first. A trailing newline
// does not produce an empty final line.
func Tail(text string, n int) []string {
	text = strings.TrimRight(text, "\r\n")
	if text == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
