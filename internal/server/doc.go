// Package server provides the inbound HTTP surface of the monitor.
//
// This package handles all HTTP concerns:
//
//   - Acknowledgement: static JSON message at "/"
//   - Probes for orchestrators: "/healthz" and "/readyz"
//   - REST API: JSON endpoint at "/api/status" for the current status snapshot
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the heartbeat library should not need to interact with this
// package directly. The server is started by [heartbeat.Monitor.Start].
package server
