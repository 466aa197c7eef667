package main

import (
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// mockState tracks boot time and current health of a single service.
type mockState struct {
	readyAt      time.Time
	healthy      bool
	nextChangeAt time.Time
}

// StartMockServer runs mock services under /svc/{name}.
//
// Each service answers 503 for its first 3-12 seconds, simulating a slow
// boot that the warm-up pass has to wait out. After that it flips between
// healthy (200) and failing (500) every 20-60 seconds.
// Call this in a goroutine before starting the monitor.
func StartMockServer(addr string, logger *zap.Logger) {
	var (
		states = make(map[string]*mockState)
		mu     sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/svc/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/svc/")

		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		now := time.Now()
		state, exists := states[name]
		if !exists {
			state = &mockState{
				readyAt:      now.Add(time.Duration(3+rand.Intn(10)) * time.Second),
				healthy:      true,
				nextChangeAt: now.Add(time.Duration(20+rand.Intn(41)) * time.Second),
			}
			states[name] = state
		}

		code := http.StatusOK
		switch {
		case now.Before(state.readyAt):
			code = http.StatusServiceUnavailable
		default:
			if now.After(state.nextChangeAt) {
				state.healthy = !state.healthy
				state.nextChangeAt = now.Add(time.Duration(20+rand.Intn(41)) * time.Second)
				logger.Info("status change", zap.String("service", name), zap.Bool("healthy", state.healthy))
			}
			if !state.healthy {
				code = http.StatusInternalServerError
			}
		}
		mu.Unlock()

		w.WriteHeader(code)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("mock server error", zap.Error(err))
	}
}
