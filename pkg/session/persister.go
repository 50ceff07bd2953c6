package session

import "context"

// Persister is the storage capability for session records. A single instance
// is shared by all concurrently active handles and must be safe under
// concurrent calls.
type Persister interface {
	// Persist stores a record, inserting or overwriting by id.
	// A nil record is a no-op.
	Persist(ctx context.Context, rec *Record) error

	// Load retrieves the record for a session id. Absence is reported as
	// ErrNotFound, which callers treat as a normal outcome.
	Load(ctx context.Context, id string) (*Record, error)

	// Invalidate removes the session's persisted state. Idempotent.
	Invalidate(ctx context.Context, id string) error

	// IsValid reports whether a record currently exists for the id.
	IsValid(ctx context.Context, id string) bool

	// CleanUp synchronously removes expired records. It is a maintenance
	// hook driven by an external scheduler, never self-scheduled.
	CleanUp(ctx context.Context) error
}
