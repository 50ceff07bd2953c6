package session

import (
	"maps"
	"time"
)

// DefaultMaxInactive is the inactivity timeout assigned to sessions created
// without an explicit one.
const DefaultMaxInactive = 10 * time.Minute

// Record is an immutable snapshot of one session. Records are constructed
// when a session is first created, loaded from a persister, or flushed from a
// live handle; they are never mutated in place, a new record replaces the
// old one. The attribute map never aliases a handle's working set.
type Record struct {
	ID             string         `json:"id"`
	Attributes     map[string]any `json:"attributes"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`

	// MaxInactive is the inactivity timeout. Zero or negative means the
	// session never expires by age.
	MaxInactive time.Duration `json:"max_inactive"`
}

// NewRecord creates a fresh record with empty attributes and now timestamps.
func NewRecord(id string, maxInactive time.Duration) *Record {
	now := time.Now()
	return &Record{
		ID:             id,
		Attributes:     make(map[string]any),
		CreatedAt:      now,
		LastAccessedAt: now,
		MaxInactive:    maxInactive,
	}
}

// Clone returns a copy with an independently mutable attribute map.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Attributes = make(map[string]any, len(r.Attributes))
	maps.Copy(cp.Attributes, r.Attributes)
	return &cp
}

// Expired reports whether the record has outlived its inactivity timeout at
// the given instant. Records with a non-positive MaxInactive never expire.
func (r *Record) Expired(now time.Time) bool {
	if r == nil || r.MaxInactive <= 0 {
		return false
	}
	return r.LastAccessedAt.Add(r.MaxInactive).Before(now)
}
