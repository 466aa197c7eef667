package config

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jpalmerr/heartbeat"
	"github.com/jpalmerr/heartbeat/internal/logger"
)

// NewLogger builds the process logger from the log section.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	return logger.New(logger.Options{
		Level:   cfg.Level,
		Format:  cfg.Format,
		Outputs: cfg.Outputs,
	})
}

// BuildOptions converts parsed configuration into SDK options.
//
// The logger is passed through unchanged; build it with [NewLogger].
func BuildOptions(cfg *Config, log *zap.Logger) []heartbeat.Option {
	m := cfg.Monitor
	opts := []heartbeat.Option{
		heartbeat.WithPort(cfg.Port),
		heartbeat.WithInterval(m.Interval.Duration()),
		heartbeat.WithProbeTimeout(m.ProbeTimeout.Duration()),
		heartbeat.WithMaxConcurrency(m.MaxConcurrency),
	}

	if m.SkipWarmup {
		opts = append(opts, heartbeat.WithoutWarmup())
	} else {
		opts = append(opts, heartbeat.WithWarmup(m.WarmupAttempts, m.WarmupDelay.Duration()))
	}

	if log != nil {
		opts = append(opts, heartbeat.WithLogger(log))
	}
	return opts
}

// OpenStore opens the store selected by cfg. The returned close function
// releases it and is never nil.
func OpenStore(ctx context.Context, cfg StoreConfig, log *zap.Logger) (heartbeat.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "", DriverMemory:
		return heartbeat.NewMemoryStore(), noop, nil
	case DriverSQLite:
		st, err := heartbeat.OpenSQLiteStore(ctx, cfg.DSN, log)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil
	case DriverPostgres:
		st, err := heartbeat.OpenPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres store: %w", err)
		}
		return st, func() error {
			st.Close()
			return nil
		}, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// BuildUsers converts seeded user configs into store documents.
func BuildUsers(users []UserConfig) []heartbeat.User {
	out := make([]heartbeat.User, 0, len(users))
	for _, uc := range users {
		u := heartbeat.User{ID: uc.ID, Endpoints: make([]heartbeat.Endpoint, 0, len(uc.APIs))}
		for _, ec := range uc.APIs {
			u.Endpoints = append(u.Endpoints, heartbeat.Endpoint{ID: ec.ID, URL: ec.URL})
		}
		out = append(out, u)
	}
	return out
}

// SeedUsers inserts every configured user that st does not hold yet and
// returns how many were inserted. Existing documents are left as they are,
// endpoints and statuses included. The store must implement
// [heartbeat.Seeder] when users is non-empty.
func SeedUsers(ctx context.Context, st heartbeat.Store, users []UserConfig) (int, error) {
	if len(users) == 0 {
		return 0, nil
	}

	seeder, ok := st.(heartbeat.Seeder)
	if !ok {
		return 0, errors.New("store does not support seeding users")
	}

	inserted := 0
	for _, u := range BuildUsers(users) {
		ok, err := seeder.InsertUser(ctx, u)
		if err != nil {
			return inserted, fmt.Errorf("seed user %q: %w", u.ID, err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}
