package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jpalmerr/heartbeat/internal/poller"
	"github.com/jpalmerr/heartbeat/internal/store"
)

const (
	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// requestTimeout bounds every handler, including store reads.
	requestTimeout = 30 * time.Second

	// rootMessage is the static acknowledgement served at "/".
	rootMessage = "API Monitoring System is running"
)

// CycleSource reports the most recent monitoring cycle.
type CycleSource interface {
	LastCycle() (poller.CycleReport, bool)
}

// Server handles inbound HTTP requests for the monitor.
//
// Server provides these endpoints:
//   - GET /: static acknowledgement
//   - GET /healthz: liveness
//   - GET /readyz: readiness, pinging the store when it supports it
//   - GET /api/status: JSON snapshot of every user's endpoints
//   - GET /metrics: Prometheus exposition
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store    store.Store
	cycles   CycleSource
	gatherer prometheus.Gatherer
	port     int
	logger   *zap.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: store read by /api/status and pinged by /readyz
//   - port: TCP port to listen on (0 picks a free port)
//   - gatherer: registry exposed at /metrics (nil disables the route)
//   - cycles: source of the last cycle report (may be nil)
//   - logger: logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, port int, gatherer prometheus.Gatherer, cycles CycleSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:    st,
		cycles:   cycles,
		gatherer: gatherer,
		port:     port,
		logger:   logger,
	}
}

// Handler returns the router serving all endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReadiness)
	r.Get("/api/status", s.handleStatus)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleReadiness pings the store when it implements [store.Pinger].
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(store.Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	Users     []store.User `json:"users"`
	LastCycle *cycleView   `json:"lastCycle"`
}

type cycleView struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMS int64     `json:"durationMs"`
	Users      int       `json:"users"`
	Probes     int       `json:"probes"`
	Down       int       `json:"down"`
	Writes     int       `json:"writes"`
	Failures   int       `json:"failures"`
}

// handleStatus returns every user's endpoints and the last cycle as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	users, err := store.Collect(s.store.ListUsers(r.Context()))
	if err != nil {
		s.logger.Error("failed to list users", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	if users == nil {
		users = []store.User{}
	}
	for i := range users {
		if users[i].Endpoints == nil {
			users[i].Endpoints = []store.Endpoint{}
		}
	}

	resp := statusResponse{Users: users}
	if s.cycles != nil {
		if c, ok := s.cycles.LastCycle(); ok {
			resp.LastCycle = &cycleView{
				ID:         c.ID,
				StartedAt:  c.StartedAt,
				DurationMS: c.Duration.Milliseconds(),
				Users:      c.Users,
				Probes:     c.Probes,
				Down:       c.Down,
				Writes:     c.Writes,
				Failures:   c.Failures,
			}
		}
	}

	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
