// Package store provides the user document store consumed by the monitor.
//
// The monitor reads and writes user documents through the narrow [Store]
// contract: enumerate all users, fetch one user, overwrite one user's
// endpoint collection. Optional capabilities are expressed as separate
// interfaces:
//
//   - [ConditionalUpdater]: revision-checked writes for read-modify-write
//   - [Seeder]: document inserts and upserts, used to load seed data
//   - [Pinger]: reachability checks for readiness probes
//
// Three implementations are bundled:
//
//   - [MemoryStore]: in-process documents, insertion ordered
//   - [SQLiteStore]: a single-file database via mattn/go-sqlite3
//   - [PostgresStore]: a pgx connection pool with JSONB documents
//
// All implementations return deep copies; callers may mutate results freely.
package store
