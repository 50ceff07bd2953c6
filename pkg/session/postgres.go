package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sessionkit/flushable/pkg/pg"
)

// pgxPool is the subset of pgxpool.Pool the persister issues queries through.
// Narrowed so the insert/update fallback can be exercised without a server.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// SavedRequestAttr is the well-known attribute key excluded from durable
// serialization. Host frameworks stash the "saved original request" there and
// it is not meaningfully persistable.
const SavedRequestAttr = "savedRequest"

// DefaultTableName is the session table used when none is configured.
const DefaultTableName = "session_data"

// PostgresPersister is the authoritative store: records survive process
// restarts. Attributes are serialized to canonical JSON, content-hashed with
// SHA-256, and upserted race-safely: a duplicate-key insert falls back to
// the update path and a zero-row update falls back to the insert path, each
// at most once.
type PostgresPersister struct {
	pool     pgxPool
	table    string
	excluded string
	log      *slog.Logger
}

// PostgresOption configures a PostgresPersister.
type PostgresOption func(*PostgresPersister)

// WithTable sets the session table name.
func WithTable(name string) PostgresOption {
	return func(p *PostgresPersister) {
		if name != "" {
			p.table = name
		}
	}
}

// WithExcludedAttribute overrides the attribute key omitted from
// serialization.
func WithExcludedAttribute(key string) PostgresOption {
	return func(p *PostgresPersister) { p.excluded = key }
}

// WithPostgresLogger sets the persister's logger.
func WithPostgresLogger(log *slog.Logger) PostgresOption {
	return func(p *PostgresPersister) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPostgresPersister creates the durable persister and issues an idempotent
// CREATE TABLE IF NOT EXISTS bootstrap. Bootstrap failure is logged, not
// fatal: the table may already exist with an externally managed schema (see
// the migrations subdirectory for the goose-managed alternative).
func NewPostgresPersister(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) *PostgresPersister {
	p := &PostgresPersister{
		pool:     pool,
		table:    DefaultTableName,
		excluded: SavedRequestAttr,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.createTable(ctx); err != nil {
		p.log.WarnContext(ctx, "could not bootstrap session table, assuming it is managed externally",
			"table", p.table, "error", err)
	}
	return p
}

func (p *PostgresPersister) createTable(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		session_id TEXT PRIMARY KEY,
		session_hash CHAR(64) NOT NULL,
		session_data BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		last_accessed_at TIMESTAMPTZ NOT NULL,
		max_inactive_interval BIGINT NOT NULL
	)`, p.table))
	return err
}

// encodeAttributes produces the canonical payload and its content hash for a
// record. The excluded attribute is dropped first; encoding/json emits map
// keys in sorted order, so equal attribute maps always produce identical
// bytes and therefore identical hashes.
func encodeAttributes(rec *Record, excluded string) (payload []byte, hash string, err error) {
	attrs := maps.Clone(rec.Attributes)
	if attrs == nil {
		attrs = map[string]any{}
	}
	delete(attrs, excluded)

	payload, err = json.Marshal(attrs)
	if err != nil {
		return nil, "", errors.Join(ErrSerialization, err)
	}
	sum := sha256.Sum256(payload)
	// 64 uppercase hex chars of the 256-bit digest, matching the schema's CHAR(64).
	hash = strings.ToUpper(hex.EncodeToString(sum[:]))
	return payload, hash, nil
}

// Persist writes the record inside a transaction, choosing the update path
// when a row already exists and the insert path otherwise. Each path falls
// back to the other at most once, so a persistently inconsistent store
// reports ErrPersistFailed instead of ping-ponging.
func (p *PostgresPersister) Persist(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	payload, hash, err := encodeAttributes(rec, p.excluded)
	if err != nil {
		return err
	}
	if p.IsValid(ctx, rec.ID) {
		return p.update(ctx, rec, payload, hash, true)
	}
	return p.insert(ctx, rec, payload, hash, true)
}

func (p *PostgresPersister) insert(ctx context.Context, rec *Record, payload []byte, hash string, fallback bool) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (session_id, session_data, session_hash, max_inactive_interval, created_at, last_accessed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`, p.table),
			rec.ID, payload, hash, int64(rec.MaxInactive/time.Second), rec.CreatedAt, rec.LastAccessedAt)
		return err
	})
	if err == nil {
		p.log.DebugContext(ctx, "inserted session", "session_id", rec.ID)
		return nil
	}
	if pg.IsDuplicateKeyError(err) && fallback {
		// Someone else inserted at the same time; their row wins the key,
		// our data wins the content.
		p.log.DebugContext(ctx, "duplicate key on session insert, retrying as update", "session_id", rec.ID)
		return p.update(ctx, rec, payload, hash, false)
	}
	p.log.ErrorContext(ctx, "failed to persist session", "session_id", rec.ID, "error", err)
	return errors.Join(ErrPersistFailed, err)
}

func (p *PostgresPersister) update(ctx context.Context, rec *Record, payload []byte, hash string, fallback bool) error {
	var updated int64
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET session_data = $1, session_hash = $2, last_accessed_at = $3, max_inactive_interval = $4
			 WHERE session_id = $5`, p.table),
			payload, hash, rec.LastAccessedAt, int64(rec.MaxInactive/time.Second), rec.ID)
		if err != nil {
			return err
		}
		updated = tag.RowsAffected()
		return nil
	})
	if err != nil {
		p.log.ErrorContext(ctx, "failed to update session", "session_id", rec.ID, "error", err)
		return errors.Join(ErrPersistFailed, err)
	}
	if updated == 0 {
		// Row deleted out from under us.
		if fallback {
			p.log.DebugContext(ctx, "no session row to update, retrying as insert", "session_id", rec.ID)
			return p.insert(ctx, rec, payload, hash, false)
		}
		return fmt.Errorf("%w: session %s vanished during update", ErrPersistFailed, rec.ID)
	}
	p.log.DebugContext(ctx, "updated session", "session_id", rec.ID)
	return nil
}

// Load reads the one row for the id. Zero rows is ErrNotFound; more than one
// row means the unique-id invariant is broken outside this package's control
// and is surfaced as ErrCorruptStore.
func (p *PostgresPersister) Load(ctx context.Context, id string) (*Record, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT session_data, created_at, last_accessed_at, max_inactive_interval
		 FROM %s WHERE session_id = $1`, p.table), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		rec   *Record
		count int
	)
	for rows.Next() {
		count++
		if count > 1 {
			return nil, fmt.Errorf("%w: multiple rows for session %s", ErrCorruptStore, id)
		}
		var (
			payload     []byte
			createdAt   time.Time
			accessedAt  time.Time
			maxInactive int64
		)
		if err := rows.Scan(&payload, &createdAt, &accessedAt, &maxInactive); err != nil {
			return nil, err
		}
		attrs, err := decodeAttributes(payload)
		if err != nil {
			return nil, err
		}
		rec = &Record{
			ID:             id,
			Attributes:     attrs,
			CreatedAt:      createdAt,
			LastAccessedAt: accessedAt,
			MaxInactive:    time.Duration(maxInactive) * time.Second,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func decodeAttributes(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal(payload, &attrs); err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}

// Invalidate deletes the row. Not finding one is logged, not an error.
func (p *PostgresPersister) Invalidate(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, p.table), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		p.log.DebugContext(ctx, "no session row to invalidate", "session_id", id)
	}
	return nil
}

// IsValid reports whether exactly one row exists for the id.
func (p *PostgresPersister) IsValid(ctx context.Context, id string) bool {
	var count int64
	err := p.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE session_id = $1`, p.table), id).Scan(&count)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to check session validity", "session_id", id, "error", err)
		return false
	}
	return count == 1
}

// expiredRow is one sweep candidate with the last-accessed value observed
// during the scan.
type expiredRow struct {
	id           string
	lastAccessed time.Time
}

// expiredRows filters the scanned rows down to those past their timeout at
// the given instant. Rows with a non-positive interval never expire.
func expiredRows(ids []string, accessed []time.Time, maxInactive []time.Duration, now time.Time) []expiredRow {
	var out []expiredRow
	for i := range ids {
		if maxInactive[i] <= 0 {
			continue
		}
		if accessed[i].Add(maxInactive[i]).Before(now) {
			out = append(out, expiredRow{id: ids[i], lastAccessed: accessed[i]})
		}
	}
	return out
}

// CleanUp scans all rows, computes the expired subset against a single now,
// and deletes it in one batch. The delete predicate re-checks
// last_accessed_at against the value read during the scan, so a session
// touched concurrently with the sweep is not deleted out from under its
// owner.
func (p *PostgresPersister) CleanUp(ctx context.Context) error {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT session_id, last_accessed_at, max_inactive_interval FROM %s`, p.table))
	if err != nil {
		return err
	}

	var (
		ids      []string
		accessed []time.Time
		inactive []time.Duration
	)
	for rows.Next() {
		var (
			id      string
			at      time.Time
			seconds int64
		)
		if err := rows.Scan(&id, &at, &seconds); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
		accessed = append(accessed, at)
		inactive = append(inactive, time.Duration(seconds)*time.Second)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	expired := expiredRows(ids, accessed, inactive, time.Now())
	if len(expired) == 0 {
		return nil
	}
	p.log.InfoContext(ctx, "sweeping expired sessions", "count", len(expired))

	batch := &pgx.Batch{}
	for _, row := range expired {
		batch.Queue(fmt.Sprintf(
			`DELETE FROM %s WHERE session_id = $1 AND last_accessed_at = $2`, p.table),
			row.id, row.lastAccessed)
	}
	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	var errs []error
	for range expired {
		if _, err := br.Exec(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
