// Package runtime probes container lifecycle state and samples container
// logs from the Docker Engine API.
package runtime

// StatusKind classifies the outcome of a status probe.
type StatusKind int

const (
	StatusRunning StatusKind = iota
	StatusNotRunning
	StatusNotFound
	StatusProbeError
)

func (k StatusKind) String() string {
	switch k {
	case StatusRunning:
		return "running"
	case StatusNotRunning:
		return "not_running"
	case StatusNotFound:
		return "not_found"
	case StatusProbeError:
		return "probe_error"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of one target as seen by a probe.
type Status struct {
	Kind StatusKind
	// State is the raw runtime state ("running", "exited", "paused", ...).
	// Empty for NotFound and ProbeError.
	State string
	// Detail is a human-readable probe failure, set only for ProbeError.
	Detail string
}

// Running reports whether the target is eligible for analysis.
func (s Status) Running() bool {
	return s.Kind == StatusRunning
}

// String renders the status the way it appears in report headers and logs.
func (s Status) String() string {
	switch s.Kind {
	case StatusRunning, StatusNotRunning:
		if s.State != "" {
			return s.State
		}
		return s.Kind.String()
	case StatusProbeError:
		return "error"
	default:
		return s.Kind.String()
	}
}

// Running returns a running status.
func Running() Status {
	return Status{Kind: StatusRunning, State: "running"}
}

// NotRunning returns a status for a container that exists in another state.
func NotRunning(state string) Status {
	return Status{Kind: StatusNotRunning, State: state}
}

// NotFound returns a status for a container the runtime does not know.
func NotFound() Status {
	return Status{Kind: StatusNotFound}
}

// ProbeError returns a status for a failed lookup.
func ProbeError(detail string) Status {
	return Status{Kind: StatusProbeError, Detail: detail}
}
