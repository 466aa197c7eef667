package poller

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestClient_Probe_Classification verifies the mapping from HTTP responses to
// outcome kinds: only 200 is up, every other received status is unexpected.
func TestClient_Probe_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   OutcomeKind
	}{
		{"200 is up", http.StatusOK, OutcomeUp},
		{"204 is unexpected", http.StatusNoContent, OutcomeUnexpectedStatus},
		{"301 is unexpected", http.StatusMovedPermanently, OutcomeUnexpectedStatus},
		{"404 is unexpected", http.StatusNotFound, OutcomeUnexpectedStatus},
		{"503 is unexpected", http.StatusServiceUnavailable, OutcomeUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("method = %s, want GET", r.Method)
				}
				// no Location header, so a 301 is not followed
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient()
			defer client.Close()

			got := client.Probe(context.Background(), server.URL, time.Second)
			if got.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.want)
			}
			if got.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.status)
			}
			if got.Latency <= 0 {
				t.Error("expected positive latency")
			}
		})
	}
}

// TestClient_Probe_Timeout verifies a slow endpoint becomes a failure once the
// per-probe timeout elapses.
func TestClient_Probe_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient()
	defer client.Close()

	start := time.Now()
	got := client.Probe(context.Background(), server.URL, 50*time.Millisecond)

	if got.Kind != OutcomeFailure {
		t.Fatalf("Kind = %v, want failure", got.Kind)
	}
	if !strings.Contains(got.Reason, "deadline exceeded") {
		t.Errorf("Reason = %q, want deadline exceeded", got.Reason)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("probe took %v, timeout not honoured", elapsed)
	}
}

// TestClient_Probe_ConnectionRefused verifies an unreachable host is a failure
// carrying the transport error.
func TestClient_Probe_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client := NewClient()
	defer client.Close()

	got := client.Probe(context.Background(), "http://"+addr, time.Second)
	if got.Kind != OutcomeFailure {
		t.Fatalf("Kind = %v, want failure", got.Kind)
	}
	if got.Reason == "" {
		t.Error("expected a failure reason")
	}
	if got.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", got.StatusCode)
	}
}

// TestClient_Probe_InvalidURL verifies malformed URLs never panic.
func TestClient_Probe_InvalidURL(t *testing.T) {
	client := NewClient()
	defer client.Close()

	for _, url := range []string{"", "://missing-scheme", "ht tp://bad host"} {
		got := client.Probe(context.Background(), url, time.Second)
		if got.Kind != OutcomeFailure {
			t.Errorf("Probe(%q).Kind = %v, want failure", url, got.Kind)
		}
	}
}

// TestClient_Probe_DefaultTimeout verifies a zero timeout still produces a
// bounded request rather than failing immediately.
func TestClient_Probe_DefaultTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	if got := client.Probe(context.Background(), server.URL, 0); !got.IsUp() {
		t.Errorf("Probe with zero timeout = %v, want UP", got)
	}
}

// TestClient_ConnectionReuse verifies that the HTTP client reuses connections
// when probing the same host, including when the response has a body.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("ok", 512)))
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		if got := client.Probe(ctx, server.URL, 5*time.Second); !got.IsUp() {
			t.Fatalf("probe %d = %v", i, got)
		}
	}

	// all probes after the first should reuse the connection
	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient()

	client.Close()
	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client
	client.Close()
}

// TestClient_Close_ClientRemainsUsable verifies that probing works after Close
// released the idle connections.
func TestClient_Close_ClientRemainsUsable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	for i := 0; i < 3; i++ {
		client.Probe(context.Background(), server.URL, time.Second)
	}
	client.Close()

	if got := client.Probe(context.Background(), server.URL, time.Second); !got.IsUp() {
		t.Errorf("probe after Close = %v, want UP", got)
	}
}
