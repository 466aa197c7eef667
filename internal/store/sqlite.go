package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id       TEXT PRIMARY KEY,
	apis     TEXT NOT NULL DEFAULT '[]',
	revision INTEGER NOT NULL DEFAULT 0,
	seq      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS users_seq ON users(seq);
`

// SQLiteStore is a [Store] backed by a single SQLite database file.
//
// Each user is one row; the endpoint collection is stored as a JSON array in
// the apis column. Users enumerate in creation order. Writes that hit
// SQLITE_BUSY or SQLITE_LOCKED are retried with exponential backoff.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// applies the schema.
func OpenSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, 5000)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger.Named("sqlite")}, nil
}

// ListUsers streams users from a single query in creation order.
func (s *SQLiteStore) ListUsers(ctx context.Context) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		rows, err := s.db.QueryContext(ctx, `SELECT id, apis, revision FROM users ORDER BY seq`)
		if err != nil {
			yield(User{}, fmt.Errorf("list users: %w", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				yield(User{}, fmt.Errorf("list users: %w", err))
				return
			}
			if !yield(u, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(User{}, fmt.Errorf("list users: %w", err))
		}
	}
}

// GetUser fetches one user or ErrNotFound.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, apis, revision FROM users WHERE id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("get user %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %q: %w", userID, err)
	}
	return u, nil
}

// UpdateUserEndpoints overwrites the apis column.
func (s *SQLiteStore) UpdateUserEndpoints(ctx context.Context, userID string, endpoints []Endpoint) error {
	data, err := marshalEndpoints(endpoints)
	if err != nil {
		return err
	}
	return s.exec(ctx, userID, -1,
		`UPDATE users SET apis = ?, revision = revision + 1 WHERE id = ?`, data, userID)
}

// UpdateUserEndpointsAt overwrites the apis column if revision still matches.
func (s *SQLiteStore) UpdateUserEndpointsAt(ctx context.Context, userID string, revision int64, endpoints []Endpoint) error {
	data, err := marshalEndpoints(endpoints)
	if err != nil {
		return err
	}
	return s.exec(ctx, userID, revision,
		`UPDATE users SET apis = ?, revision = revision + 1 WHERE id = ? AND revision = ?`, data, userID, revision)
}

// PutUser inserts a user or replaces an existing user's endpoints.
func (s *SQLiteStore) PutUser(ctx context.Context, user User) error {
	if user.ID == "" {
		return errors.New("put user: id is required")
	}
	data, err := marshalEndpoints(user.Endpoints)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (id, apis, revision, seq)
			VALUES (?, ?, 0, (SELECT COALESCE(MAX(seq), 0) + 1 FROM users))
			ON CONFLICT(id) DO UPDATE SET apis = excluded.apis, revision = users.revision + 1`,
			user.ID, data)
		return err
	})
}

// InsertUser adds user unless a row with its id already exists.
func (s *SQLiteStore) InsertUser(ctx context.Context, user User) (bool, error) {
	if user.ID == "" {
		return false, errors.New("insert user: id is required")
	}
	data, err := marshalEndpoints(user.Endpoints)
	if err != nil {
		return false, err
	}
	var affected int64
	err = s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO users (id, apis, revision, seq)
			VALUES (?, ?, 0, (SELECT COALESCE(MAX(seq), 0) + 1 FROM users))
			ON CONFLICT(id) DO NOTHING`,
			user.ID, data)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteUser removes a user. Deleting an unknown user is a no-op.
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
		return err
	})
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// exec runs an update and maps zero affected rows to ErrNotFound or, for a
// conditional write (revision >= 0), to ErrConflict when the user exists.
func (s *SQLiteStore) exec(ctx context.Context, userID string, revision int64, query string, args ...any) error {
	var affected int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update user %q: %w", userID, err)
	}
	if affected > 0 {
		return nil
	}
	if revision < 0 {
		return fmt.Errorf("update user %q: %w", userID, ErrNotFound)
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	return fmt.Errorf("update user %q at revision %d: %w", userID, revision, ErrConflict)
}

func (s *SQLiteStore) withRetry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 10 * time.Second

	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isDatabaseLocked(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		s.logger.Warn("database locked, will retry", zap.Error(err), zap.Duration("backoff", next))
	})
}

func isDatabaseLocked(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return strings.Contains(err.Error(), "database is locked")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(scanner rowScanner) (User, error) {
	var (
		u    User
		apis []byte
	)
	if err := scanner.Scan(&u.ID, &apis, &u.Revision); err != nil {
		return User{}, err
	}
	if err := json.Unmarshal(apis, &u.Endpoints); err != nil {
		return User{}, fmt.Errorf("decode apis of user %q: %w", u.ID, err)
	}
	return u, nil
}

func marshalEndpoints(endpoints []Endpoint) ([]byte, error) {
	if endpoints == nil {
		endpoints = []Endpoint{}
	}
	data, err := json.Marshal(endpoints)
	if err != nil {
		return nil, fmt.Errorf("encode apis: %w", err)
	}
	return data, nil
}
