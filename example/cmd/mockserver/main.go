// Standalone mock server for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/heartbeat serve -c example/config.yaml
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewDevelopment()

	fmt.Println("Mock server starting on :9999")
	fmt.Println("Services under /svc/{name} answer 503 for 10s, then 200")
	fmt.Println("GET /svc/{name}?down=1 takes a service down, ?down=0 brings it back")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu      sync.Mutex
		started = time.Now()
		down    = make(map[string]bool)
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/svc/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/svc/")

		mu.Lock()
		switch r.URL.Query().Get("down") {
		case "1":
			down[name] = true
			logger.Info("service down", zap.String("service", name))
		case "0":
			delete(down, name)
			logger.Info("service up", zap.String("service", name))
		}
		isDown := down[name]
		mu.Unlock()

		switch {
		case time.Since(started) < 10*time.Second:
			w.WriteHeader(http.StatusServiceUnavailable)
		case isDown:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})

	if err := http.ListenAndServe(":9999", mux); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}
