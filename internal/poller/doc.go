// Package poller implements endpoint liveness monitoring.
//
// The main components are:
//
//   - [Client]: probes a URL with one bounded HTTP GET and classifies the result
//   - [Outcome]: the classification of a single probe
//   - [Retrier]: drives a [Prober] until the endpoint answers 200 or attempts run out
//   - [Updater]: stamps probe outcomes onto the owning user's document
//   - [Scheduler]: the warm-up pass followed by the fixed-interval monitoring loop
//
// Users of the heartbeat library should not need to interact with this
// package directly. Configuration is done through the main heartbeat package.
package poller
