package poller

import (
	"fmt"
	"time"
)

// OutcomeKind identifies which of the three probe results occurred.
type OutcomeKind int

const (
	// OutcomeUp means the endpoint answered HTTP 200.
	OutcomeUp OutcomeKind = iota

	// OutcomeUnexpectedStatus means a response arrived with any other status.
	OutcomeUnexpectedStatus

	// OutcomeFailure means no response arrived: invalid URL, DNS, refused
	// connection, TLS or timeout.
	OutcomeFailure
)

// String returns the label used for metrics and logs.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUp:
		return "up"
	case OutcomeUnexpectedStatus:
		return "unexpected_status"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of a single probe.
type Outcome struct {
	// Kind says which case occurred.
	Kind OutcomeKind

	// StatusCode is set for OutcomeUp and OutcomeUnexpectedStatus.
	StatusCode int

	// Reason describes the transport error for OutcomeFailure.
	Reason string

	// Latency is the time spent on the probe.
	Latency time.Duration
}

// IsUp reports whether the endpoint answered 200.
func (o Outcome) IsUp() bool {
	return o.Kind == OutcomeUp
}

// String returns the status string persisted on the endpoint.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeUp:
		return "UP"
	case OutcomeUnexpectedStatus:
		return fmt.Sprintf("DOWN (unexpected status %d)", o.StatusCode)
	default:
		return fmt.Sprintf("DOWN (%s)", o.Reason)
	}
}
