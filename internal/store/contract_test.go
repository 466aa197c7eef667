package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contractStore is what every bundled implementation provides.
type contractStore interface {
	Store
	ConditionalUpdater
	Seeder
	Pinger
}

// runStoreContract exercises the behaviour shared by every bundled store.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) contractStore) {
	ctx := context.Background()

	seed := func(t *testing.T, st contractStore) {
		t.Helper()
		require.NoError(t, st.PutUser(ctx, User{ID: "alice", Endpoints: []Endpoint{
			{ID: "a1", URL: "https://a1.example.com"},
			{ID: "a2", URL: "https://a2.example.com"},
		}}))
		require.NoError(t, st.PutUser(ctx, User{ID: "bob", Endpoints: []Endpoint{
			{ID: "b1", URL: "https://b1.example.com"},
		}}))
		require.NoError(t, st.PutUser(ctx, User{ID: "carol"}))
	}

	t.Run("ListUsers enumerates in creation order", func(t *testing.T) {
		st := newStore(t)
		seed(t, st)

		users, err := Collect(st.ListUsers(ctx))
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "alice", users[0].ID)
		assert.Equal(t, "bob", users[1].ID)
		assert.Equal(t, "carol", users[2].ID)
		assert.Len(t, users[0].Endpoints, 2)
		assert.Empty(t, users[2].Endpoints)
	})

	t.Run("ListUsers is restartable", func(t *testing.T) {
		st := newStore(t)
		seed(t, st)

		seq := st.ListUsers(ctx)
		for u, err := range seq {
			require.NoError(t, err)
			assert.Equal(t, "alice", u.ID)
			break
		}
		users, err := Collect(seq)
		require.NoError(t, err)
		assert.Len(t, users, 3)
	})

	t.Run("GetUser missing returns ErrNotFound", func(t *testing.T) {
		st := newStore(t)

		_, err := st.GetUser(ctx, "nobody")
		assert.True(t, errors.Is(err, ErrNotFound), "err = %v", err)
	})

	t.Run("UpdateUserEndpoints overwrites the collection", func(t *testing.T) {
		st := newStore(t)
		seed(t, st)

		before, err := st.GetUser(ctx, "alice")
		require.NoError(t, err)

		updated := before.Clone().Endpoints
		updated[1].Status = "UP"
		updated[1].LastPing = "2024-01-02 03:04:05"
		require.NoError(t, st.UpdateUserEndpoints(ctx, "alice", updated))

		after, err := st.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, updated, after.Endpoints)
		assert.Greater(t, after.Revision, before.Revision)

		bob, err := st.GetUser(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "", bob.Endpoints[0].Status)
	})

	t.Run("UpdateUserEndpoints missing user", func(t *testing.T) {
		st := newStore(t)

		err := st.UpdateUserEndpoints(ctx, "nobody", nil)
		assert.True(t, errors.Is(err, ErrNotFound), "err = %v", err)
	})

	t.Run("UpdateUserEndpointsAt rejects stale revision", func(t *testing.T) {
		st := newStore(t)
		seed(t, st)

		u, err := st.GetUser(ctx, "bob")
		require.NoError(t, err)

		// an external writer bumps the revision
		require.NoError(t, st.UpdateUserEndpoints(ctx, "bob", u.Endpoints))

		err = st.UpdateUserEndpointsAt(ctx, "bob", u.Revision, u.Endpoints)
		assert.True(t, errors.Is(err, ErrConflict), "err = %v", err)

		fresh, err := st.GetUser(ctx, "bob")
		require.NoError(t, err)
		require.NoError(t, st.UpdateUserEndpointsAt(ctx, "bob", fresh.Revision, fresh.Endpoints))
	})

	t.Run("UpdateUserEndpointsAt missing user", func(t *testing.T) {
		st := newStore(t)

		err := st.UpdateUserEndpointsAt(ctx, "nobody", 0, nil)
		assert.True(t, errors.Is(err, ErrNotFound), "err = %v", err)
	})

	t.Run("InsertUser leaves existing documents untouched", func(t *testing.T) {
		st := newStore(t)
		seed(t, st)

		changed := []Endpoint{
			{ID: "b1", URL: "https://b1.example.com", Status: "UP", LastPing: "2026-01-01 00:00:00"},
			{ID: "b2", URL: "https://b2.example.com"},
		}
		require.NoError(t, st.UpdateUserEndpoints(ctx, "bob", changed))
		before, err := st.GetUser(ctx, "bob")
		require.NoError(t, err)

		inserted, err := st.InsertUser(ctx, User{ID: "bob", Endpoints: []Endpoint{{ID: "b1", URL: "https://b1.example.com"}}})
		require.NoError(t, err)
		assert.False(t, inserted)

		after, err := st.GetUser(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, changed, after.Endpoints)
		assert.Equal(t, before.Revision, after.Revision)

		inserted, err = st.InsertUser(ctx, User{ID: "dave", Endpoints: []Endpoint{{ID: "d1", URL: "https://d1.example.com"}}})
		require.NoError(t, err)
		assert.True(t, inserted)

		users, err := Collect(st.ListUsers(ctx))
		require.NoError(t, err)
		require.Len(t, users, 4)
		assert.Equal(t, "dave", users[3].ID)
	})

	t.Run("InsertUser requires an id", func(t *testing.T) {
		st := newStore(t)

		_, err := st.InsertUser(ctx, User{})
		assert.Error(t, err)
	})

	t.Run("returned documents are copies", func(t *testing.T) {
		st := newStore(t)
		seed(t, st)

		u, err := st.GetUser(ctx, "alice")
		require.NoError(t, err)
		u.Endpoints[0].URL = "mutated"

		again, err := st.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "https://a1.example.com", again.Endpoints[0].URL)
	})

	t.Run("concurrent writes to distinct users", func(t *testing.T) {
		st := newStore(t)
		seed(t, st)

		var wg sync.WaitGroup
		for _, id := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					u, err := st.GetUser(ctx, id)
					if !assert.NoError(t, err) {
						return
					}
					eps := u.Clone().Endpoints
					eps[0].Status = "UP"
					assert.NoError(t, st.UpdateUserEndpoints(ctx, id, eps))
				}
			}(id)
		}
		wg.Wait()

		for _, id := range []string{"alice", "bob"} {
			u, err := st.GetUser(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "UP", u.Endpoints[0].Status)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		st := newStore(t)
		assert.NoError(t, st.Ping(ctx))
	})
}
