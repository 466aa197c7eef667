package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// DefaultProbeTimeout bounds a single probe when no timeout is configured.
const DefaultProbeTimeout = 10 * time.Second

// connection pooling limits to prevent resource exhaustion when probing many endpoints
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Prober performs a single liveness check.
//
// Implementations must never panic or return an error: every failure is
// folded into the returned [Outcome].
type Prober interface {
	Probe(ctx context.Context, url string, timeout time.Duration) Outcome
}

// Client is an HTTP client wrapper optimized for probing endpoints.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Response bodies are drained up to 1MB so keep-alive connections are reused.
type Client struct {
	httpClient *http.Client
}

var _ Prober = (*Client)(nil)

// NewClient creates a new probing [Client].
//
// Connection pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Probe issues one GET against url bounded by timeout and classifies it.
//
// HTTP 200 is [OutcomeUp], any other received status is
// [OutcomeUnexpectedStatus], and everything else is [OutcomeFailure] with the
// error text as the reason. A non-positive timeout uses [DefaultProbeTimeout].
func (c *Client) Probe(ctx context.Context, url string, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Outcome{
			Kind:    OutcomeFailure,
			Reason:  fmt.Sprintf("invalid request: %v", err),
			Latency: time.Since(start),
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{
			Kind:    OutcomeFailure,
			Reason:  err.Error(),
			Latency: time.Since(start),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	// drain so the connection can go back to the pool
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))

	o := Outcome{
		Kind:       OutcomeUnexpectedStatus,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
	if resp.StatusCode == http.StatusOK {
		o.Kind = OutcomeUp
	}
	return o
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil client. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
