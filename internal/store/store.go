package store

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrNotFound is returned when a user document does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrConflict is returned by a conditional write when the document
	// revision changed since it was read.
	ErrConflict = errors.New("revision conflict")
)

// Endpoint is a monitored URL belonging to a user.
//
// Endpoint maps one entry of a user document's "apis" array. ID is unique
// within a user only. Status and LastPing are written by the monitor; every
// other field is owned by whoever registered the endpoint.
type Endpoint struct {
	// ID identifies the endpoint inside its user's collection.
	ID string `json:"id"`

	// URL is the address probed with HTTP GET.
	URL string `json:"url"`

	// Status is the display string of the last probe outcome.
	Status string `json:"status,omitempty"`

	// LastPing is the time of the last persisted probe, formatted with
	// LastPingLayout.
	LastPing string `json:"lastPing,omitempty"`
}

// LastPingLayout is the time layout of [Endpoint.LastPing].
const LastPingLayout = "2006-01-02 15:04:05"

// User is a user document: an identifier plus an ordered endpoint collection.
type User struct {
	// ID is the document key.
	ID string `json:"id"`

	// Endpoints is the document's "apis" field, in stored order.
	Endpoints []Endpoint `json:"apis"`

	// Revision increments on every write. It is maintained by the store and
	// used for conditional writes; it is not part of the document itself.
	Revision int64 `json:"-"`
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	cp := u
	if u.Endpoints != nil {
		cp.Endpoints = append([]Endpoint(nil), u.Endpoints...)
	}
	return cp
}

// Store is the narrow document-store contract the monitor consumes.
//
// Implementations must be safe for concurrent use. Distinct users are
// distinct documents; no cross-document transaction is assumed.
type Store interface {
	// ListUsers lazily enumerates every user document. Each call starts a
	// fresh enumeration. An enumeration failure is yielded once as a non-nil
	// error, after which the sequence ends.
	ListUsers(ctx context.Context) iter.Seq2[User, error]

	// GetUser fetches one user document. Returns ErrNotFound when absent.
	GetUser(ctx context.Context, userID string) (User, error)

	// UpdateUserEndpoints overwrites the user's endpoint collection with a
	// single field update. Returns ErrNotFound when the user is absent.
	UpdateUserEndpoints(ctx context.Context, userID string, endpoints []Endpoint) error
}

// ConditionalUpdater is implemented by stores that can reject a write whose
// base revision is stale.
type ConditionalUpdater interface {
	// UpdateUserEndpointsAt behaves like UpdateUserEndpoints but fails with
	// ErrConflict unless the stored revision still equals revision.
	UpdateUserEndpointsAt(ctx context.Context, userID string, revision int64, endpoints []Endpoint) error
}

// Seeder is implemented by stores that can create user documents. The
// monitor never calls it; it is used to load seed data.
//
// PutUser replaces an existing document. InsertUser leaves an existing
// document untouched and reports whether user was written.
type Seeder interface {
	PutUser(ctx context.Context, user User) error
	InsertUser(ctx context.Context, user User) (bool, error)
}

// Pinger is implemented by stores with a reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Collect drains a ListUsers sequence into a slice.
func Collect(seq iter.Seq2[User, error]) ([]User, error) {
	var users []User
	for u, err := range seq {
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
