// Package contactlist decides whether the client trusts its cached contacts or
// asks the proxy, and exposes the outcome as one {Data, Err, IsLoading} value.
package contactlist

import (
	"context"
	"log/slog"
	"sync"

	"contact-manager/internal/cache"
	"contact-manager/internal/contact"
)

// State is the read cycle position.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Result is what a list view renders. Exactly one of Data and Err is meaningful
// once IsLoading is false.
type Result struct {
	Data      []contact.Contact
	Err       error
	IsLoading bool
}

// Source reads the full contact list from the network.
type Source interface {
	FetchAllContacts(ctx context.Context) ([]contact.Contact, error)
}

// Orchestrator runs the cache-then-network read. It never retries; a failed
// cycle leaves the cache untouched and the next Load starts a new one.
type Orchestrator struct {
	src   Source
	cache cache.Store
	log   *slog.Logger

	mu       sync.Mutex
	state    State
	data     []contact.Contact
	err      error
	inflight *cycle
	observe  func(State, Result)
}

type cycle struct {
	done chan struct{}
	res  Result
	// abandoned is set when the leader's context ended the cycle.
	abandoned bool
	waiters   int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithObserver is called on every state change, outside the lock.
func WithObserver(f func(State, Result)) Option {
	return func(o *Orchestrator) { o.observe = f }
}

func NewOrchestrator(src Source, store cache.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{src: src, cache: store, log: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load returns the contact list, from the cache when present. Concurrent calls
// share one fetch. A cycle dropped by its starter's context is not handed to
// the others: they start a new one.
func (o *Orchestrator) Load(ctx context.Context) Result {
	for {
		o.mu.Lock()
		if c := o.inflight; c != nil {
			c.waiters++
			o.mu.Unlock()
			select {
			case <-c.done:
				if c.abandoned && ctx.Err() == nil {
					continue
				}
				return c.res
			case <-ctx.Done():
				return Result{Err: ctx.Err()}
			}
		}
		c := &cycle{done: make(chan struct{})}
		o.inflight = c
		o.mu.Unlock()

		o.transition(Loading, nil, nil)
		c.res = o.run(ctx)
		c.abandoned = ctx.Err() != nil

		o.mu.Lock()
		o.inflight = nil
		o.mu.Unlock()
		close(c.done)
		return c.res
	}
}

func (o *Orchestrator) run(ctx context.Context) Result {
	cached, ok, err := o.cache.Get(ctx)
	if err != nil {
		o.log.Warn("contact cache unreadable, fetching", "error", err)
	}
	if err == nil && ok {
		o.transition(Ready, cached, nil)
		return Result{Data: cached}
	}

	fetched, err := o.src.FetchAllContacts(ctx)
	if ctx.Err() != nil {
		// Abandoned: whatever came back is dropped.
		o.transition(Idle, nil, nil)
		return Result{Err: ctx.Err()}
	}
	if err != nil {
		o.transition(Failed, nil, err)
		return Result{Err: err}
	}
	if err := o.cache.Set(ctx, fetched); err != nil {
		o.log.Warn("contact cache not updated", "error", err)
	}
	o.transition(Ready, fetched, nil)
	return Result{Data: fetched}
}

func (o *Orchestrator) transition(s State, data []contact.Contact, err error) {
	o.mu.Lock()
	o.state, o.data, o.err = s, data, err
	res := o.snapshotLocked()
	observe := o.observe
	o.mu.Unlock()
	if observe != nil {
		observe(s, res)
	}
}

// Snapshot returns the current view without starting a cycle.
func (o *Orchestrator) Snapshot() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Result {
	return Result{Data: o.data, Err: o.err, IsLoading: o.state == Loading}
}

// State reports the current cycle position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reset forgets the last outcome. The cache is not touched.
func (o *Orchestrator) Reset() {
	o.transition(Idle, nil, nil)
}
