package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ChainPersister composes an ordered list of delegate persisters. Writes,
// invalidations, and cleanups fan out to every delegate unconditionally;
// reads return the first delegate's answer, which enables "fast cache first,
// durable store second" layering. Ordering delegates affects read priority
// only; every delegate always receives every write.
//
// The delegate list is copy-on-write: mutations publish a fresh slice, so an
// operation in progress keeps iterating the snapshot it started with.
type ChainPersister struct {
	mu        sync.Mutex // serializes writers to the delegate list
	delegates atomic.Pointer[[]Persister]
	log       *slog.Logger
}

// NewChainPersister creates a chain over the given delegates in read order.
func NewChainPersister(delegates ...Persister) *ChainPersister {
	c := &ChainPersister{log: slog.Default()}
	c.SetPersisters(delegates)
	return c
}

// SetLogger replaces the chain's logger.
func (c *ChainPersister) SetLogger(log *slog.Logger) {
	if log != nil {
		c.log = log
	}
}

// Persisters returns a copy of the current delegate list.
func (c *ChainPersister) Persisters() []Persister {
	snap := c.snapshot()
	out := make([]Persister, len(snap))
	copy(out, snap)
	return out
}

// SetPersisters replaces the delegate list as a whole.
func (c *ChainPersister) SetPersisters(delegates []Persister) {
	cp := make([]Persister, 0, len(delegates))
	for _, p := range delegates {
		if p != nil {
			cp = append(cp, p)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegates.Store(&cp)
}

// Append adds a persister at the end of the chain.
func (c *ChainPersister) Append(p Persister) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := *c.delegates.Load()
	next := make([]Persister, len(snap), len(snap)+1)
	copy(next, snap)
	next = append(next, p)
	c.delegates.Store(&next)
}

// Insert adds a persister at the given position, clamping out-of-range
// indexes to the ends of the chain.
func (c *ChainPersister) Insert(index int, p Persister) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := *c.delegates.Load()
	if index < 0 {
		index = 0
	}
	if index > len(snap) {
		index = len(snap)
	}
	next := make([]Persister, 0, len(snap)+1)
	next = append(next, snap[:index]...)
	next = append(next, p)
	next = append(next, snap[index:]...)
	c.delegates.Store(&next)
}

func (c *ChainPersister) snapshot() []Persister {
	return *c.delegates.Load()
}

// Persist fans the write out to every delegate in order. A failing delegate
// does not stop the fan-out; failures are logged and joined.
func (c *ChainPersister) Persist(ctx context.Context, rec *Record) error {
	var errs []error
	for _, p := range c.snapshot() {
		if err := p.Persist(ctx, rec); err != nil {
			c.log.ErrorContext(ctx, "chain delegate failed to persist session", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load returns the first delegate's non-absent record without querying the
// rest of the chain. Delegate read failures other than corruption are
// swallowed as misses so a flaky cache tier cannot mask the durable one.
func (c *ChainPersister) Load(ctx context.Context, id string) (*Record, error) {
	for _, p := range c.snapshot() {
		rec, err := p.Load(ctx, id)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrCorruptStore) {
			return nil, err
		}
		if !errors.Is(err, ErrNotFound) {
			c.log.ErrorContext(ctx, "chain delegate failed to load session, trying next",
				"session_id", id, "error", err)
		}
	}
	return nil, ErrNotFound
}

// Invalidate fans out to every delegate unconditionally.
func (c *ChainPersister) Invalidate(ctx context.Context, id string) error {
	var errs []error
	for _, p := range c.snapshot() {
		if err := p.Invalidate(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsValid reports true if any delegate holds the session, short-circuiting
// on the first hit.
func (c *ChainPersister) IsValid(ctx context.Context, id string) bool {
	for _, p := range c.snapshot() {
		if p.IsValid(ctx, id) {
			return true
		}
	}
	return false
}

// CleanUp fans out to every delegate unconditionally, in order.
func (c *ChainPersister) CleanUp(ctx context.Context) error {
	var errs []error
	for _, p := range c.snapshot() {
		if err := p.CleanUp(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
