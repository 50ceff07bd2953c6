package session

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexUpper64 = regexp.MustCompile(`^[0-9A-F]{64}$`)

func TestEncodeAttributes(t *testing.T) {
	t.Parallel()

	t.Run("hash is 64 uppercase hex chars", func(t *testing.T) {
		t.Parallel()

		rec := NewRecord("abc", time.Minute)
		rec.Attributes["user"] = "alice"

		_, hash, err := encodeAttributes(rec, SavedRequestAttr)
		require.NoError(t, err)
		assert.Regexp(t, hexUpper64, hash)
	})

	t.Run("equal attribute maps produce identical payload and hash", func(t *testing.T) {
		t.Parallel()

		a := NewRecord("abc", time.Minute)
		a.Attributes["user"] = "alice"
		a.Attributes["count"] = 3

		b := NewRecord("xyz", time.Hour)
		b.Attributes["count"] = 3
		b.Attributes["user"] = "alice"

		payloadA, hashA, err := encodeAttributes(a, SavedRequestAttr)
		require.NoError(t, err)
		payloadB, hashB, err := encodeAttributes(b, SavedRequestAttr)
		require.NoError(t, err)

		assert.Equal(t, payloadA, payloadB)
		assert.Equal(t, hashA, hashB)
	})

	t.Run("different attributes produce different hashes", func(t *testing.T) {
		t.Parallel()

		a := NewRecord("abc", time.Minute)
		a.Attributes["user"] = "alice"
		b := NewRecord("abc", time.Minute)
		b.Attributes["user"] = "bob"

		_, hashA, err := encodeAttributes(a, SavedRequestAttr)
		require.NoError(t, err)
		_, hashB, err := encodeAttributes(b, SavedRequestAttr)
		require.NoError(t, err)
		assert.NotEqual(t, hashA, hashB)
	})

	t.Run("excluded attribute is dropped without mutating the record", func(t *testing.T) {
		t.Parallel()

		rec := NewRecord("abc", time.Minute)
		rec.Attributes["user"] = "alice"
		rec.Attributes[SavedRequestAttr] = "GET /deep/link"

		payload, _, err := encodeAttributes(rec, SavedRequestAttr)
		require.NoError(t, err)
		assert.NotContains(t, string(payload), SavedRequestAttr)
		assert.Contains(t, rec.Attributes, SavedRequestAttr)

		bare := NewRecord("abc", time.Minute)
		bare.Attributes["user"] = "alice"
		barePayload, _, err := encodeAttributes(bare, SavedRequestAttr)
		require.NoError(t, err)
		assert.Equal(t, barePayload, payload)
	})

	t.Run("nil attribute map encodes as an empty object", func(t *testing.T) {
		t.Parallel()

		rec := &Record{ID: "abc"}
		payload, hash, err := encodeAttributes(rec, SavedRequestAttr)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(payload))
		assert.Regexp(t, hexUpper64, hash)
	})

	t.Run("unencodable value fails with ErrSerialization", func(t *testing.T) {
		t.Parallel()

		rec := NewRecord("abc", time.Minute)
		rec.Attributes["ch"] = make(chan int)

		_, _, err := encodeAttributes(rec, SavedRequestAttr)
		assert.ErrorIs(t, err, ErrSerialization)
	})
}

func TestDecodeAttributes(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		rec := NewRecord("abc", time.Minute)
		rec.Attributes["user"] = "alice"
		rec.Attributes["count"] = float64(3)

		payload, _, err := encodeAttributes(rec, SavedRequestAttr)
		require.NoError(t, err)

		attrs, err := decodeAttributes(payload)
		require.NoError(t, err)
		assert.Equal(t, "alice", attrs["user"])
		assert.Equal(t, float64(3), attrs["count"])
	})

	t.Run("empty payload yields an empty map", func(t *testing.T) {
		t.Parallel()

		attrs, err := decodeAttributes(nil)
		require.NoError(t, err)
		assert.NotNil(t, attrs)
		assert.Empty(t, attrs)
	})

	t.Run("json null yields an empty map", func(t *testing.T) {
		t.Parallel()

		attrs, err := decodeAttributes([]byte("null"))
		require.NoError(t, err)
		assert.NotNil(t, attrs)
	})

	t.Run("garbage fails with ErrSerialization", func(t *testing.T) {
		t.Parallel()

		_, err := decodeAttributes([]byte("{not json"))
		assert.ErrorIs(t, err, ErrSerialization)
	})
}

func TestExpiredRows(t *testing.T) {
	t.Parallel()

	now := time.Now()

	ids := []string{"live", "stale", "immortal", "boundary"}
	accessed := []time.Time{
		now.Add(-30 * time.Second),
		now.Add(-10 * time.Minute),
		now.Add(-100 * 24 * time.Hour),
		now.Add(-time.Minute),
	}
	inactive := []time.Duration{
		time.Minute,
		time.Minute,
		0,
		2 * time.Minute,
	}

	got := expiredRows(ids, accessed, inactive, now)
	require.Len(t, got, 1)
	assert.Equal(t, "stale", got[0].id)
	assert.Equal(t, accessed[1], got[0].lastAccessed)

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, expiredRows(nil, nil, nil, now))
	})
}

// scriptedExec is one pre-programmed statement outcome.
type scriptedExec struct {
	tag pgconn.CommandTag
	err error
}

// scriptedPool satisfies pgxPool with canned responses so the write paths can
// run without a database. Each transactional Exec consumes the next scripted
// outcome; the kind of statement (insert or update) is recorded in order.
type scriptedPool struct {
	script     []scriptedExec
	statements []string
	rowCount   int64 // answer for the IsValid COUNT(*) query
}

func (p *scriptedPool) Begin(context.Context) (pgx.Tx, error) {
	return &scriptedTx{pool: p}, nil
}

func (p *scriptedPool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (p *scriptedPool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("unexpected query")
}

func (p *scriptedPool) QueryRow(context.Context, string, ...any) pgx.Row {
	return countRow{count: p.rowCount}
}

func (p *scriptedPool) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("unexpected batch")
}

func (p *scriptedPool) txExec(sql string) (pgconn.CommandTag, error) {
	switch {
	case strings.HasPrefix(sql, "INSERT"):
		p.statements = append(p.statements, "insert")
	case strings.HasPrefix(sql, "UPDATE"):
		p.statements = append(p.statements, "update")
	}
	if len(p.script) == 0 {
		panic("statement beyond script: " + sql)
	}
	next := p.script[0]
	p.script = p.script[1:]
	return next.tag, next.err
}

type scriptedTx struct {
	pgx.Tx
	pool *scriptedPool
}

func (t *scriptedTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	return t.pool.txExec(sql)
}

func (t *scriptedTx) Commit(context.Context) error   { return nil }
func (t *scriptedTx) Rollback(context.Context) error { return pgx.ErrTxClosed }

type countRow struct{ count int64 }

func (r countRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.count
	return nil
}

func newScriptedPersister(pool *scriptedPool) *PostgresPersister {
	return &PostgresPersister{
		pool:     pool,
		table:    DefaultTableName,
		excluded: SavedRequestAttr,
		log:      slog.Default(),
	}
}

func TestPostgresPersisterUpsertFallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := NewRecord("abc", time.Minute)
	rec.Attributes["user"] = "alice"

	t.Run("duplicate key insert retries as update", func(t *testing.T) {
		t.Parallel()

		pool := &scriptedPool{
			rowCount: 0, // no existing row, so the insert path is chosen
			script: []scriptedExec{
				{err: &pgconn.PgError{Code: "23505"}},
				{tag: pgconn.NewCommandTag("UPDATE 1")},
			},
		}
		p := newScriptedPersister(pool)

		require.NoError(t, p.Persist(ctx, rec))
		assert.Equal(t, []string{"insert", "update"}, pool.statements)
	})

	t.Run("vanished row update retries as insert", func(t *testing.T) {
		t.Parallel()

		pool := &scriptedPool{
			rowCount: 1, // row existed at the validity check
			script: []scriptedExec{
				{tag: pgconn.NewCommandTag("UPDATE 0")},
				{tag: pgconn.NewCommandTag("INSERT 0 1")},
			},
		}
		p := newScriptedPersister(pool)

		require.NoError(t, p.Persist(ctx, rec))
		assert.Equal(t, []string{"update", "insert"}, pool.statements)
	})

	t.Run("fallback is bounded to one hop", func(t *testing.T) {
		t.Parallel()

		pool := &scriptedPool{
			rowCount: 0,
			script: []scriptedExec{
				{err: &pgconn.PgError{Code: "23505"}},
				{tag: pgconn.NewCommandTag("UPDATE 0")},
			},
		}
		p := newScriptedPersister(pool)

		err := p.Persist(ctx, rec)
		assert.ErrorIs(t, err, ErrPersistFailed)
		assert.Equal(t, []string{"insert", "update"}, pool.statements)
	})

	t.Run("non-duplicate insert failure does not retry", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("disk full")
		pool := &scriptedPool{
			rowCount: 0,
			script:   []scriptedExec{{err: boom}},
		}
		p := newScriptedPersister(pool)

		err := p.Persist(ctx, rec)
		assert.ErrorIs(t, err, ErrPersistFailed)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"insert"}, pool.statements)
	})

	t.Run("update failure does not retry", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("connection reset")
		pool := &scriptedPool{
			rowCount: 1,
			script:   []scriptedExec{{err: boom}},
		}
		p := newScriptedPersister(pool)

		err := p.Persist(ctx, rec)
		assert.ErrorIs(t, err, ErrPersistFailed)
		assert.Equal(t, []string{"update"}, pool.statements)
	})

	t.Run("clean insert needs no fallback", func(t *testing.T) {
		t.Parallel()

		pool := &scriptedPool{
			rowCount: 0,
			script:   []scriptedExec{{tag: pgconn.NewCommandTag("INSERT 0 1")}},
		}
		p := newScriptedPersister(pool)

		require.NoError(t, p.Persist(ctx, rec))
		assert.Equal(t, []string{"insert"}, pool.statements)
	})
}
