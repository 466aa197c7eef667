package poller

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/jpalmerr/heartbeat/internal/store"
)

// fakeProber returns scripted outcomes per URL and counts calls.
// Once a script runs out, its last outcome repeats. Unknown URLs are up.
type fakeProber struct {
	mu      sync.Mutex
	scripts map[string][]Outcome
	calls   map[string]int
	total   int
	panicOn string
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		scripts: make(map[string][]Outcome),
		calls:   make(map[string]int),
	}
}

func (p *fakeProber) script(url string, outcomes ...Outcome) *fakeProber {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[url] = outcomes
	return p
}

func (p *fakeProber) Probe(_ context.Context, url string, _ time.Duration) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	if url == p.panicOn {
		panic("prober exploded")
	}

	n := p.calls[url]
	p.calls[url] = n + 1
	p.total++

	script, ok := p.scripts[url]
	if !ok || len(script) == 0 {
		return Outcome{Kind: OutcomeUp, StatusCode: 200}
	}
	if n >= len(script) {
		return script[len(script)-1]
	}
	return script[n]
}

func (p *fakeProber) callsFor(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

func (p *fakeProber) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

var (
	up       = Outcome{Kind: OutcomeUp, StatusCode: 200}
	down503  = Outcome{Kind: OutcomeUnexpectedStatus, StatusCode: 503}
	refused  = Outcome{Kind: OutcomeFailure, Reason: "connection refused"}
	errStore = errors.New("store unavailable")
)

// countingStore wraps a MemoryStore, counting writes and injecting faults.
type countingStore struct {
	*store.MemoryStore

	mu            sync.Mutex
	writes        map[string][][]store.Endpoint
	listFailures  int
	getErr        error
	updateErr     error
	beforeWrite   func(userID string)
	conflictsLeft int
}

func newCountingStore(users ...store.User) *countingStore {
	return &countingStore{
		MemoryStore: store.NewMemoryStore(users...),
		writes:      make(map[string][][]store.Endpoint),
	}
}

func (c *countingStore) ListUsers(ctx context.Context) iter.Seq2[store.User, error] {
	c.mu.Lock()
	fail := c.listFailures > 0
	if fail {
		c.listFailures--
	}
	c.mu.Unlock()

	if fail {
		return func(yield func(store.User, error) bool) {
			yield(store.User{}, errStore)
		}
	}
	return c.MemoryStore.ListUsers(ctx)
}

func (c *countingStore) GetUser(ctx context.Context, userID string) (store.User, error) {
	c.mu.Lock()
	err := c.getErr
	c.mu.Unlock()
	if err != nil {
		return store.User{}, err
	}
	return c.MemoryStore.GetUser(ctx, userID)
}

func (c *countingStore) UpdateUserEndpoints(ctx context.Context, userID string, endpoints []store.Endpoint) error {
	if err := c.record(userID, endpoints); err != nil {
		return err
	}
	return c.MemoryStore.UpdateUserEndpoints(ctx, userID, endpoints)
}

func (c *countingStore) UpdateUserEndpointsAt(ctx context.Context, userID string, revision int64, endpoints []store.Endpoint) error {
	if err := c.record(userID, endpoints); err != nil {
		return err
	}
	return c.MemoryStore.UpdateUserEndpointsAt(ctx, userID, revision, endpoints)
}

func (c *countingStore) record(userID string, endpoints []store.Endpoint) error {
	c.mu.Lock()
	hook := c.beforeWrite
	if c.conflictsLeft > 0 {
		c.conflictsLeft--
		c.mu.Unlock()
		return store.ErrConflict
	}
	err := c.updateErr
	if err == nil {
		cp := make([]store.Endpoint, len(endpoints))
		copy(cp, endpoints)
		c.writes[userID] = append(c.writes[userID], cp)
	}
	c.mu.Unlock()

	if hook != nil {
		hook(userID)
	}
	return err
}

func (c *countingStore) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		n += len(w)
	}
	return n
}

func (c *countingStore) writesFor(userID string) [][]store.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[userID]
}

// plainStore hides the optional interfaces of a MemoryStore.
type plainStore struct {
	inner *store.MemoryStore
}

func (p plainStore) ListUsers(ctx context.Context) iter.Seq2[store.User, error] {
	return p.inner.ListUsers(ctx)
}

func (p plainStore) GetUser(ctx context.Context, userID string) (store.User, error) {
	return p.inner.GetUser(ctx, userID)
}

func (p plainStore) UpdateUserEndpoints(ctx context.Context, userID string, endpoints []store.Endpoint) error {
	return p.inner.UpdateUserEndpoints(ctx, userID, endpoints)
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}
