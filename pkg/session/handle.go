package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// BindingListener is an optional capability for attribute values that want to
// observe being attached to or detached from a session. On replacement the
// old value is unbound before the new one is bound.
type BindingListener interface {
	ValueBound(key string)
	ValueUnbound(key string)
}

// ActivationListener is an optional capability for attribute values that want
// to observe the session being loaded from, or about to be written to, a
// persister.
type ActivationListener interface {
	Activated(sessionID string)
	Passivated(sessionID string)
}

type handleState int

const (
	stateUninitialized handleState = iota
	stateActive
	stateInvalidated
	stateExpired
)

// Handle is the per-session lifecycle state machine. It wraps the session's
// working state, lazily loads the record from its persister on first real
// access, enforces access-time expiry, tracks invalidation, and exposes
// save-on-demand via Flush.
//
// A handle is safe for concurrent use by the request that owns it. Two
// requests may hold independent handles for the same session id; such races
// resolve last-write-wins.
type Handle struct {
	id          string
	persister   Persister
	guard       GuardConfig
	guardPrefix string
	defaultTTL  time.Duration
	log         *slog.Logger

	mu             sync.Mutex
	state          handleState
	attrs          map[string]any
	createdAt      time.Time
	lastAccessedAt time.Time
	maxInactive    time.Duration
	loadFP         Fingerprint
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithGuard wires the configuration lookup consulted when an invalidated
// session is touched. Without one, every such access fails.
func WithGuard(cfg GuardConfig) HandleOption {
	return func(h *Handle) { h.guard = cfg }
}

// WithGuardPrefix overrides the tolerance key prefix.
func WithGuardPrefix(prefix string) HandleOption {
	return func(h *Handle) {
		if prefix != "" {
			h.guardPrefix = prefix
		}
	}
}

// WithDefaultMaxInactive sets the timeout assigned to sessions that have no
// persisted record yet.
func WithDefaultMaxInactive(d time.Duration) HandleOption {
	return func(h *Handle) { h.defaultTTL = d }
}

// WithHandleLogger sets the handle's logger.
func WithHandleLogger(log *slog.Logger) HandleOption {
	return func(h *Handle) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandle creates an uninitialized handle; the persister is not consulted
// until an operation actually needs attribute data.
func NewHandle(persister Persister, id string, opts ...HandleOption) *Handle {
	h := &Handle{
		id:          id,
		persister:   persister,
		guardPrefix: DefaultTolerancePrefix,
		defaultTTL:  DefaultMaxInactive,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewHandleFromRecord creates an already-loaded handle around an existing
// record, skipping the lazy load.
func NewHandleFromRecord(persister Persister, rec *Record, opts ...HandleOption) *Handle {
	h := NewHandle(persister, rec.ID, opts...)
	cp := rec.Clone()
	h.state = stateActive
	h.attrs = cp.Attributes
	h.createdAt = cp.CreatedAt
	h.lastAccessedAt = cp.LastAccessedAt
	h.maxInactive = cp.MaxInactive
	h.loadFP = FingerprintOf(h.attrs, h.maxInactive)
	return h
}

// ID returns the session id.
func (h *Handle) ID() string { return h.id }

// Loaded reports whether the handle has touched its persister (or was
// constructed from a record).
func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state != stateUninitialized
}

// Invalidated reports whether the session reached a terminal state, either
// explicitly or by age.
func (h *Handle) Invalidated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateInvalidated || h.state == stateExpired
}

// Empty reports whether the session currently holds no attributes.
func (h *Handle) Empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.attrs) == 0
}

// MaxInactive returns the current inactivity timeout.
func (h *Handle) MaxInactive() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxInactive
}

// SetMaxInactive changes the inactivity timeout. Like the rest of the
// timeout handling, non-positive means the session never expires by age.
// Deliberately unguarded.
func (h *Handle) SetMaxInactive(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxInactive = d
}

// notification defers listener callbacks until the handle's lock is
// released, so a listener can safely call back into the session.
type notification func()

func fire(pending []notification) {
	for _, n := range pending {
		n()
	}
}

// ensureLoaded populates the working state on first use. Absence of a
// persisted record means a brand-new session; a failing load is logged and
// also treated as new so a flaky store cannot wedge the request. Caller
// holds the lock.
func (h *Handle) ensureLoaded(ctx context.Context) []notification {
	if h.state != stateUninitialized {
		return nil
	}
	rec, err := h.persister.Load(ctx, h.id)
	switch {
	case err == nil:
		cp := rec.Clone()
		h.attrs = cp.Attributes
		h.createdAt = cp.CreatedAt
		h.lastAccessedAt = cp.LastAccessedAt
		h.maxInactive = cp.MaxInactive
		h.log.DebugContext(ctx, "loaded persisted session", "session_id", h.id)
	case errors.Is(err, ErrNotFound):
		h.initFresh()
	default:
		h.log.ErrorContext(ctx, "failed to load session, starting fresh", "session_id", h.id, "error", err)
		h.initFresh()
	}
	h.state = stateActive
	h.loadFP = FingerprintOf(h.attrs, h.maxInactive)

	var pending []notification
	for _, value := range h.attrs {
		if l, ok := value.(ActivationListener); ok {
			pending = append(pending, func() { l.Activated(h.id) })
		}
	}
	return pending
}

func (h *Handle) initFresh() {
	now := time.Now()
	h.attrs = make(map[string]any)
	h.createdAt = now
	h.lastAccessedAt = now
	h.maxInactive = h.defaultTTL
}

// checkAccess is the guard every read/write operation passes through:
// terminal states consult the tolerance configuration, an aged-out session
// transitions to expired and is invalidated against the persister, and a
// permitted access bumps the last-accessed time. Caller holds the lock.
func (h *Handle) checkAccess(ctx context.Context, operation string) ([]notification, error) {
	if h.state == stateInvalidated || h.state == stateExpired {
		if tolerated(h.guard, h.guardPrefix, operation) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: session %s cannot be accessed or modified", ErrInvalidated, h.id)
	}

	pending := h.ensureLoaded(ctx)

	if h.maxInactive > 0 && h.lastAccessedAt.Add(h.maxInactive).Before(time.Now()) {
		h.state = stateExpired
		if err := h.persister.Invalidate(ctx, h.id); err != nil {
			h.log.ErrorContext(ctx, "failed to invalidate expired session", "session_id", h.id, "error", err)
		}
		if tolerated(h.guard, h.guardPrefix, operation) {
			return pending, nil
		}
		return pending, fmt.Errorf("%w: session %s (last accessed at %s) expired by age",
			ErrInvalidated, h.id, h.lastAccessedAt.Format(time.RFC3339))
	}

	h.lastAccessedAt = time.Now()
	return pending, nil
}

// GetAttribute returns the value stored under name, or nil when absent.
func (h *Handle) GetAttribute(ctx context.Context, name string) (any, error) {
	h.mu.Lock()
	pending, err := h.checkAccess(ctx, "GetAttribute")
	if err != nil {
		h.mu.Unlock()
		fire(pending)
		return nil, err
	}
	value := h.attrs[name]
	h.mu.Unlock()
	fire(pending)
	return value, nil
}

// AttributeNames returns the sorted attribute keys.
func (h *Handle) AttributeNames(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	pending, err := h.checkAccess(ctx, "AttributeNames")
	if err != nil {
		h.mu.Unlock()
		fire(pending)
		return nil, err
	}
	names := make([]string, 0, len(h.attrs))
	for name := range h.attrs {
		names = append(names, name)
	}
	h.mu.Unlock()
	fire(pending)
	sort.Strings(names)
	return names, nil
}

// SetAttribute stores a value under name. A nil value is equivalent to
// RemoveAttribute. The previous value (if any) is unbound before the new one
// is bound.
func (h *Handle) SetAttribute(ctx context.Context, name string, value any) error {
	if name == "" {
		return ErrEmptyAttributeName
	}
	if value == nil {
		return h.RemoveAttribute(ctx, name)
	}

	h.mu.Lock()
	pending, err := h.checkAccess(ctx, "SetAttribute")
	if err != nil {
		h.mu.Unlock()
		fire(pending)
		return err
	}
	if h.attrs == nil {
		// Tolerated write on a session terminated before its first load.
		h.attrs = make(map[string]any)
	}
	old := h.attrs[name]
	h.attrs[name] = value
	h.mu.Unlock()

	if l, ok := old.(BindingListener); ok {
		pending = append(pending, func() { l.ValueUnbound(name) })
	}
	if l, ok := value.(BindingListener); ok {
		pending = append(pending, func() { l.ValueBound(name) })
	}
	fire(pending)
	return nil
}

// RemoveAttribute deletes the value under name, unbinding it if applicable.
// An absent key is a silent no-op.
func (h *Handle) RemoveAttribute(ctx context.Context, name string) error {
	h.mu.Lock()
	pending, err := h.checkAccess(ctx, "RemoveAttribute")
	if err != nil {
		h.mu.Unlock()
		fire(pending)
		return err
	}
	old, existed := h.attrs[name]
	delete(h.attrs, name)
	h.mu.Unlock()

	if existed {
		if l, ok := old.(BindingListener); ok {
			pending = append(pending, func() { l.ValueUnbound(name) })
		}
	}
	fire(pending)
	return nil
}

// CreatedAt returns the session creation time.
func (h *Handle) CreatedAt(ctx context.Context) (time.Time, error) {
	h.mu.Lock()
	pending, err := h.checkAccess(ctx, "CreatedAt")
	if err != nil {
		h.mu.Unlock()
		fire(pending)
		return time.Time{}, err
	}
	t := h.createdAt
	h.mu.Unlock()
	fire(pending)
	return t, nil
}

// LastAccessedAt returns the last access time (which this call refreshes,
// like every guarded operation).
func (h *Handle) LastAccessedAt(ctx context.Context) (time.Time, error) {
	h.mu.Lock()
	pending, err := h.checkAccess(ctx, "LastAccessedAt")
	if err != nil {
		h.mu.Unlock()
		fire(pending)
		return time.Time{}, err
	}
	t := h.lastAccessedAt
	h.mu.Unlock()
	fire(pending)
	return t, nil
}

// Snapshot builds an immutable record of the current state. On an
// uninitialized handle it first performs the lazy load.
func (h *Handle) Snapshot(ctx context.Context) *Record {
	h.mu.Lock()
	pending := h.ensureLoaded(ctx)
	rec := &Record{
		ID:             h.id,
		Attributes:     h.attrs,
		CreatedAt:      h.createdAt,
		LastAccessedAt: h.lastAccessedAt,
		MaxInactive:    h.maxInactive,
	}
	rec = rec.Clone() // detach from the working set
	h.mu.Unlock()
	fire(pending)
	return rec
}

// Fingerprint digests the current attribute set and timeout. Zero for an
// uninitialized handle.
func (h *Handle) Fingerprint() Fingerprint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateUninitialized {
		return Fingerprint{}
	}
	return FingerprintOf(h.attrs, h.maxInactive)
}

// Changed reports whether the attribute set or timeout differs from what was
// loaded. An untouched handle is never dirty.
func (h *Handle) Changed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateUninitialized {
		return false
	}
	return !h.loadFP.Equal(FingerprintOf(h.attrs, h.maxInactive))
}

// Flush hands a fresh snapshot to the persister. It does not change the
// handle's state; in particular a flushed session stays live.
func (h *Handle) Flush(ctx context.Context) error {
	return h.persister.Persist(ctx, h.Snapshot(ctx))
}

// Invalidate terminates the session and removes its persisted counterpart.
// Idempotent; a race between two invalidations resolves last-writer-wins.
func (h *Handle) Invalidate(ctx context.Context) error {
	h.mu.Lock()
	h.state = stateInvalidated
	h.mu.Unlock()
	return h.persister.Invalidate(ctx, h.id)
}

// FirePassivation notifies attribute values implementing ActivationListener
// that the session is about to be persisted.
func (h *Handle) FirePassivation() {
	h.mu.Lock()
	var pending []notification
	for _, value := range h.attrs {
		if l, ok := value.(ActivationListener); ok {
			pending = append(pending, func() { l.Passivated(h.id) })
		}
	}
	h.mu.Unlock()
	fire(pending)
}
