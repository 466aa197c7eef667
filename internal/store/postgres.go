package store

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	apis       JSONB NOT NULL DEFAULT '[]'::jsonb,
	revision   BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore is a [Store] backed by a PostgreSQL users table.
//
// The endpoint collection lives in a JSONB column. Users enumerate in
// creation order.
type PostgresStore struct {
	db *pgxpool.Pool
}

// OpenPostgresStore connects to dsn, verifies the connection and applies the
// schema.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

// ListUsers streams users in creation order.
func (ps *PostgresStore) ListUsers(ctx context.Context) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		const query = `
			SELECT id, apis, revision
			FROM users
			ORDER BY created_at, id
		`
		rows, err := ps.db.Query(ctx, query)
		if err != nil {
			yield(User{}, fmt.Errorf("query failed: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				yield(User{}, fmt.Errorf("scan failed: %w", err))
				return
			}
			if !yield(u, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(User{}, fmt.Errorf("row iteration failed: %w", err))
		}
	}
}

// GetUser fetches one user or ErrNotFound.
func (ps *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	const query = `
		SELECT id, apis, revision
		FROM users
		WHERE id = $1
	`
	u, err := scanUser(ps.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("get user %q: %w", userID, ErrNotFound)
		}
		return User{}, fmt.Errorf("find by id failed: %w", err)
	}
	return u, nil
}

// UpdateUserEndpoints overwrites the apis column.
func (ps *PostgresStore) UpdateUserEndpoints(ctx context.Context, userID string, endpoints []Endpoint) error {
	data, err := marshalEndpoints(endpoints)
	if err != nil {
		return err
	}
	const query = `
		UPDATE users
		SET apis = $1, revision = revision + 1
		WHERE id = $2
	`
	tag, err := ps.db.Exec(ctx, query, data, userID)
	if err != nil {
		return fmt.Errorf("failed to update apis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update user %q: %w", userID, ErrNotFound)
	}
	return nil
}

// UpdateUserEndpointsAt overwrites the apis column if revision still matches.
func (ps *PostgresStore) UpdateUserEndpointsAt(ctx context.Context, userID string, revision int64, endpoints []Endpoint) error {
	data, err := marshalEndpoints(endpoints)
	if err != nil {
		return err
	}
	const query = `
		UPDATE users
		SET apis = $1, revision = revision + 1
		WHERE id = $2 AND revision = $3
	`
	tag, err := ps.db.Exec(ctx, query, data, userID, revision)
	if err != nil {
		return fmt.Errorf("failed to update apis: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := ps.GetUser(ctx, userID); err != nil {
		return err
	}
	return fmt.Errorf("update user %q at revision %d: %w", userID, revision, ErrConflict)
}

// PutUser inserts a user or replaces an existing user's endpoints.
func (ps *PostgresStore) PutUser(ctx context.Context, user User) error {
	if user.ID == "" {
		return errors.New("put user: id is required")
	}
	data, err := marshalEndpoints(user.Endpoints)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO users (id, apis)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET apis = EXCLUDED.apis, revision = users.revision + 1
	`
	if _, err := ps.db.Exec(ctx, query, user.ID, data); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// InsertUser adds user unless a row with its id already exists.
func (ps *PostgresStore) InsertUser(ctx context.Context, user User) (bool, error) {
	if user.ID == "" {
		return false, errors.New("insert user: id is required")
	}
	data, err := marshalEndpoints(user.Endpoints)
	if err != nil {
		return false, err
	}
	const query = `
		INSERT INTO users (id, apis)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := ps.db.Exec(ctx, query, user.ID, data)
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteUser removes a user. Deleting an unknown user is a no-op.
func (ps *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := ps.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Ping checks the pool.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.db.Ping(ctx)
}

// Close closes the pool.
func (ps *PostgresStore) Close() {
	ps.db.Close()
}

