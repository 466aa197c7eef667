package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jpalmerr/heartbeat"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	// start mock services (see mock_server.go)
	go StartMockServer(":9999", logger.Named("mock"))
	time.Sleep(100 * time.Millisecond)

	// two users sharing the in-memory store; "ghost" points at a closed port
	st := heartbeat.NewMemoryStore(
		heartbeat.User{ID: "alice", Endpoints: []heartbeat.Endpoint{
			{ID: "orders", URL: "http://localhost:9999/svc/orders"},
			{ID: "billing", URL: "http://localhost:9999/svc/billing"},
		}},
		heartbeat.User{ID: "bob", Endpoints: []heartbeat.Endpoint{
			{ID: "search", URL: "http://localhost:9999/svc/search"},
			{ID: "ghost", URL: "http://localhost:1/health"},
		}},
	)

	m, err := heartbeat.New(st,
		heartbeat.WithInterval(15*time.Second),
		heartbeat.WithProbeTimeout(2*time.Second),
		heartbeat.WithWarmup(5, 2*time.Second),
		heartbeat.WithPort(8080),
		heartbeat.WithLogger(logger),
		heartbeat.WithCycleCallback(func(r heartbeat.CycleReport) {
			fmt.Printf("cycle %s: %d probes, %d down, %d writes in %s\n",
				r.ID[:8], r.Probes, r.Down, r.Writes, r.Duration.Round(time.Millisecond))
		}),
	)
	if err != nil {
		logger.Error("failed to create monitor", zap.Error(err))
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  heartbeat demo")
	fmt.Println()
	fmt.Println("  Status:  http://localhost:8080/api/status")
	fmt.Println("  Metrics: http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  Mock services boot slowly, then flap every 20-60s.")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		logger.Error("monitor error", zap.Error(err))
		os.Exit(1)
	}
}
