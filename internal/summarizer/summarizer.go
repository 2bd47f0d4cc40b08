// Package summarizer turns a container log sample into a short analysis.
//
// A Summarizer never returns an error: every failure is folded into a
// Degraded outcome so the caller can still write a report.
package summarizer

import (
	"context"
	"fmt"
	"time"
)

// Summarizer produces an analysis for one log sample.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) Outcome
}

// Request carries one summarization call.
type Request struct {
	Target  string
	Model   string
	Logs    string
	Timeout time.Duration
}

// Kind classifies an analysis outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindDegraded
	KindSkipped
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindDegraded:
		return "degraded"
	case KindSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Reason explains a degraded or skipped outcome.
type Reason string

const (
	ReasonTimeout         Reason = "timeout"
	ReasonTransport       Reason = "transport"
	ReasonBadStatus       Reason = "bad_status"
	ReasonEmptyResponse   Reason = "empty_response"
	ReasonInvalidResponse Reason = "invalid_response"
	ReasonToolFailed      Reason = "tool_failed"
	ReasonNotRunning      Reason = "not_running"
	ReasonNotFound        Reason = "not_found"
	ReasonProbeError      Reason = "probe_error"
)

// Outcome is Success(text), Degraded(reason) or Skipped(reason).
type Outcome struct {
	Kind   Kind
	Text   string
	Reason Reason
	Detail string
}

// Success wraps generated analysis text.
func Success(text string) Outcome {
	return Outcome{Kind: KindSuccess, Text: text}
}

// Degraded records a failed analysis that still yields a report.
func Degraded(reason Reason, detail string) Outcome {
	return Outcome{Kind: KindDegraded, Reason: reason, Detail: detail}
}

// Skipped records a target that was not analyzed this cycle.
func Skipped(reason Reason, detail string) Outcome {
	return Outcome{Kind: KindSkipped, Reason: reason, Detail: detail}
}

// Analysis returns the text for a report's analysis section: the summary on
// success, a placeholder naming the failure otherwise.
func (o Outcome) Analysis() string {
	switch o.Kind {
	case KindSuccess:
		return o.Text
	case KindDegraded:
		return fmt.Sprintf("[analysis unavailable: %s] %s", o.Reason, o.Detail)
	default:
		return fmt.Sprintf("[analysis skipped: %s] %s", o.Reason, o.Detail)
	}
}
