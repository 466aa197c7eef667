package heartbeat

import (
	"context"

	"go.uber.org/zap"

	"github.com/jpalmerr/heartbeat/internal/store"
)

// Store is the document store holding users and their endpoints.
type Store = store.Store

// User is a user document: an id and an ordered endpoint collection.
type User = store.User

// Endpoint is one monitored URL with its last status and lastPing.
type Endpoint = store.Endpoint

// Seeder is implemented by stores that can create user documents.
type Seeder = store.Seeder

// Store implementations.
type (
	MemoryStore   = store.MemoryStore
	SQLiteStore   = store.SQLiteStore
	PostgresStore = store.PostgresStore
)

// Store errors.
var (
	ErrNotFound = store.ErrNotFound
	ErrConflict = store.ErrConflict
)

// LastPingLayout is the time layout of [Endpoint] LastPing values.
const LastPingLayout = store.LastPingLayout

// NewMemoryStore creates an in-memory store seeded with users.
func NewMemoryStore(users ...User) *MemoryStore {
	return store.NewMemoryStore(users...)
}

// OpenSQLiteStore opens (creating if needed) a SQLite store at path.
func OpenSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	return store.OpenSQLiteStore(ctx, path, logger)
}

// OpenPostgresStore connects to a PostgreSQL store and applies its schema.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	return store.OpenPostgresStore(ctx, dsn)
}
