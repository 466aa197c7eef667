// Package heartbeat monitors the liveness of user-registered HTTP endpoints
// and records their status in a shared document store.
//
// Each user document in the store holds an ordered list of endpoints
// ("apis"). The monitor reads them all, probes every endpoint with a plain
// HTTP GET and writes the outcome back onto the endpoint as a status string
// and a lastPing timestamp.
//
// # Quick Start
//
//	st := heartbeat.NewMemoryStore(heartbeat.User{
//	    ID: "alice",
//	    Endpoints: []heartbeat.Endpoint{{ID: "api", URL: "https://api.example.com/health"}},
//	})
//	m, _ := heartbeat.New(st)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	m.Start(ctx) // blocks until context is cancelled
//
// # Phases
//
// On start the monitor runs a warm-up pass: endpoints are visited one at a
// time in store order and each is retried until it answers 200 or the
// attempt limit is reached. Warm-up results are logged only.
//
// The monitor then loops forever. Each cycle re-reads every user, probes all
// endpoints concurrently, writes each user's document once with the new
// statuses, waits for every write to settle and sleeps for the interval.
//
// # Status values
//
//   - "UP": the endpoint answered HTTP 200
//   - "DOWN (unexpected status N)": any other HTTP status
//   - "DOWN (reason)": no response (DNS, refused connection, TLS, timeout)
//
// # Stores
//
// [NewMemoryStore], [OpenSQLiteStore] and [OpenPostgresStore] provide ready
// implementations of [Store]. All three support revision-conditional writes,
// so a concurrent edit of a user document is never overwritten.
//
// # Configuration
//
//	m, err := heartbeat.New(st,
//	    heartbeat.WithInterval(time.Minute),
//	    heartbeat.WithProbeTimeout(5 * time.Second),
//	    heartbeat.WithWarmup(3, time.Second),
//	    heartbeat.WithPort(9090),
//	    heartbeat.WithMaxConcurrency(20),
//	)
package heartbeat
