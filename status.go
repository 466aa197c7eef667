package heartbeat

import "github.com/jpalmerr/heartbeat/internal/poller"

// Outcome is the classified result of a single probe.
//
// Its String method yields the status persisted on the endpoint: "UP",
// "DOWN (unexpected status N)" or "DOWN (reason)".
type Outcome = poller.Outcome

// OutcomeKind identifies which of the three probe results occurred.
type OutcomeKind = poller.OutcomeKind

const (
	// OutcomeUp means the endpoint answered HTTP 200.
	OutcomeUp = poller.OutcomeUp

	// OutcomeUnexpectedStatus means a response arrived with any other status.
	OutcomeUnexpectedStatus = poller.OutcomeUnexpectedStatus

	// OutcomeFailure means no response arrived at all.
	OutcomeFailure = poller.OutcomeFailure
)

// Prober performs a single liveness check. See [WithProber].
type Prober = poller.Prober

// CycleReport summarises one pass of the monitoring loop.
//
// A report is passed to every callback registered with [WithCycleCallback]
// after each cycle that managed to enumerate the store.
type CycleReport = poller.CycleReport
