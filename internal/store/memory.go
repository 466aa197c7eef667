package store

import (
	"context"
	"fmt"
	"iter"
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore keeps user documents in insertion order, so ListUsers
// enumerates users in the order they were first stored. Every read returns a
// deep copy and every write stores one, so callers never share slices with
// the store.
//
// MemoryStore also implements [ConditionalUpdater], [Seeder] and [Pinger].
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
	order []string
}

// NewMemoryStore creates an empty [MemoryStore].
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore(users ...User) *MemoryStore {
	m := &MemoryStore{
		users: make(map[string]User, len(users)),
	}
	for _, u := range users {
		m.put(u)
	}
	return m
}

// ListUsers enumerates a snapshot of all users taken when iteration starts.
func (m *MemoryStore) ListUsers(ctx context.Context) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		m.mu.RLock()
		snapshot := make([]User, 0, len(m.order))
		for _, id := range m.order {
			snapshot = append(snapshot, m.users[id].Clone())
		}
		m.mu.RUnlock()

		for _, u := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(User{}, err)
				return
			}
			if !yield(u, nil) {
				return
			}
		}
	}
}

// GetUser returns a copy of the user document or ErrNotFound.
func (m *MemoryStore) GetUser(_ context.Context, userID string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return User{}, fmt.Errorf("get user %q: %w", userID, ErrNotFound)
	}
	return u.Clone(), nil
}

// UpdateUserEndpoints replaces the user's endpoint collection.
func (m *MemoryStore) UpdateUserEndpoints(_ context.Context, userID string, endpoints []Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("update user %q: %w", userID, ErrNotFound)
	}
	m.writeLocked(u, endpoints)
	return nil
}

// UpdateUserEndpointsAt replaces the user's endpoint collection if the stored
// revision still equals revision.
func (m *MemoryStore) UpdateUserEndpointsAt(_ context.Context, userID string, revision int64, endpoints []Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("update user %q: %w", userID, ErrNotFound)
	}
	if u.Revision != revision {
		return fmt.Errorf("update user %q at revision %d (current %d): %w", userID, revision, u.Revision, ErrConflict)
	}
	m.writeLocked(u, endpoints)
	return nil
}

// PutUser creates or replaces a whole user document. A replaced document
// keeps its enumeration position.
func (m *MemoryStore) PutUser(_ context.Context, user User) error {
	if user.ID == "" {
		return fmt.Errorf("put user: id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(user)
	return nil
}

// InsertUser adds user unless a document with its id already exists.
func (m *MemoryStore) InsertUser(_ context.Context, user User) (bool, error) {
	if user.ID == "" {
		return false, fmt.Errorf("insert user: id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return false, nil
	}
	m.put(user)
	return true, nil
}

// DeleteUser removes a user document. Deleting an unknown user is a no-op.
func (m *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return nil
	}
	delete(m.users, userID)
	for i, id := range m.order {
		if id == userID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// put stores a copy of user. Caller must hold the write lock (or own m).
func (m *MemoryStore) put(user User) {
	prev, exists := m.users[user.ID]
	cp := user.Clone()
	if exists {
		cp.Revision = prev.Revision + 1
	} else {
		cp.Revision = 0
		m.order = append(m.order, user.ID)
	}
	m.users[user.ID] = cp
}

func (m *MemoryStore) writeLocked(u User, endpoints []Endpoint) {
	u.Endpoints = append([]Endpoint(nil), endpoints...)
	u.Revision++
	m.users[u.ID] = u
}
