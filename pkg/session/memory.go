package session

import (
	"container/list"
	"context"
	"hash/fnv"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// MemoryPersister is a bounded, time-expiring, best-effort in-memory
// persister. Size-based eviction is least-recently-used first; time-based
// expiry removes entries whose last touch exceeds the expiry window. Entries
// can disappear at any time, so callers must treat ErrNotFound as a normal
// outcome rather than an error.
//
// The store is sharded: each shard owns its own lock, entry map, and recency
// list, so handles touching different sessions rarely contend.
type MemoryPersister struct {
	shards     []*memoryShard
	shardHint  int
	maxEntries int
	expiry     time.Duration
	onEvict    func(id string, rec *Record)
	log        *slog.Logger
}

type memoryShard struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*list.Element
	order   *list.List // front = most recently touched
}

type memoryEntry struct {
	id        string
	rec       *Record
	touchedAt time.Time
}

// MemoryOption configures a MemoryPersister.
type MemoryOption func(*MemoryPersister)

// WithMaxEntries bounds the total number of cached sessions (default 100).
// The bound holds across all shards.
func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryPersister) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithExpireAfterAccess sets the idle expiry window for cached entries
// (default 60s). Non-positive disables time-based expiry.
func WithExpireAfterAccess(d time.Duration) MemoryOption {
	return func(m *MemoryPersister) { m.expiry = d }
}

// WithShards sets the concurrency shard count (default NumCPU/2, min 1).
// Counts above the entry bound are clamped down so every shard keeps a
// nonzero capacity.
func WithShards(n int) MemoryOption {
	return func(m *MemoryPersister) {
		if n > 0 {
			m.shardHint = n
		}
	}
}

// WithEvictCallback registers an observer for evicted or expired entries.
func WithEvictCallback(fn func(id string, rec *Record)) MemoryOption {
	return func(m *MemoryPersister) { m.onEvict = fn }
}

// WithMemoryLogger sets the logger used for eviction diagnostics.
func WithMemoryLogger(log *slog.Logger) MemoryOption {
	return func(m *MemoryPersister) {
		if log != nil {
			m.log = log
		}
	}
}

// NewMemoryPersister creates an in-memory persister with the default policy:
// 100 entries, 60 second expire-after-access, NumCPU/2 shards.
func NewMemoryPersister(opts ...MemoryOption) *MemoryPersister {
	m := &MemoryPersister{
		maxEntries: 100,
		expiry:     60 * time.Second,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	shards := m.shardHint
	if shards == 0 {
		shards = max(1, runtime.NumCPU()/2)
	}
	// Per-shard capacities must sum to exactly maxEntries, so a shard count
	// above the bound would leave zero-capacity shards; clamp it instead.
	if shards > m.maxEntries {
		shards = m.maxEntries
	}
	m.shards = make([]*memoryShard, shards)
	base, extra := m.maxEntries/shards, m.maxEntries%shards
	for i := range m.shards {
		limit := base
		if i < extra {
			limit++
		}
		m.shards[i] = &memoryShard{
			limit:   limit,
			entries: make(map[string]*list.Element),
			order:   list.New(),
		}
	}
	return m
}

func (m *MemoryPersister) shard(id string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Persist inserts or overwrites the record. Nil records are ignored.
func (m *MemoryPersister) Persist(_ context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	s := m.shard(rec.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[rec.ID]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.rec = rec.Clone()
		entry.touchedAt = time.Now()
		s.order.MoveToFront(elem)
		return nil
	}

	elem := s.order.PushFront(&memoryEntry{id: rec.ID, rec: rec.Clone(), touchedAt: time.Now()})
	s.entries[rec.ID] = elem
	if s.order.Len() > s.limit {
		m.evict(s, s.order.Back(), "size")
	}
	return nil
}

// Load returns a copy of the cached record, bumping its recency.
func (m *MemoryPersister) Load(_ context.Context, id string) (*Record, error) {
	rec := m.touch(id)
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Invalidate removes the entry if present.
func (m *MemoryPersister) Invalidate(_ context.Context, id string) error {
	s := m.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.entries[id]; ok {
		s.order.Remove(elem)
		delete(s.entries, id)
	}
	return nil
}

// IsValid reports whether the entry is present and not expired. Like any
// read, it counts as an access.
func (m *MemoryPersister) IsValid(_ context.Context, id string) bool {
	return m.touch(id) != nil
}

// CleanUp synchronously removes every expired entry. Expiry also happens
// lazily on access, so calling this is never required for correctness.
func (m *MemoryPersister) CleanUp(_ context.Context) error {
	if m.expiry <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-m.expiry)
	for _, s := range m.shards {
		s.mu.Lock()
		// Recency order and touch time move together, so the stale tail is
		// contiguous at the back.
		for elem := s.order.Back(); elem != nil; elem = s.order.Back() {
			if !elem.Value.(*memoryEntry).touchedAt.Before(cutoff) {
				break
			}
			m.evict(s, elem, "expired")
		}
		s.mu.Unlock()
	}
	return nil
}

// Len reports the number of live (non-expired) entries.
func (m *MemoryPersister) Len() int {
	n := 0
	now := time.Now()
	for _, s := range m.shards {
		s.mu.Lock()
		for elem := s.order.Front(); elem != nil; elem = elem.Next() {
			entry := elem.Value.(*memoryEntry)
			if m.expiry <= 0 || !entry.touchedAt.Add(m.expiry).Before(now) {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// touch finds a live entry, refreshes its access time, and returns its
// record, expiring it in place when the window has passed.
func (m *MemoryPersister) touch(id string) *Record {
	s := m.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[id]
	if !ok {
		return nil
	}
	entry := elem.Value.(*memoryEntry)
	if m.expiry > 0 && entry.touchedAt.Add(m.expiry).Before(time.Now()) {
		m.evict(s, elem, "expired")
		return nil
	}
	entry.touchedAt = time.Now()
	s.order.MoveToFront(elem)
	return entry.rec
}

// evict removes an element. Caller holds the shard lock.
func (m *MemoryPersister) evict(s *memoryShard, elem *list.Element, cause string) {
	entry := elem.Value.(*memoryEntry)
	s.order.Remove(elem)
	delete(s.entries, entry.id)
	m.log.Debug("evicting cached session", "session_id", entry.id, "cause", cause)
	if m.onEvict != nil {
		m.onEvict(entry.id, entry.rec)
	}
}
