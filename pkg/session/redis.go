package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces session keys in Redis.
const DefaultRedisKeyPrefix = "session:"

// RedisPersister stores records as JSON under a prefixed key with a TTL equal
// to the record's inactivity timeout, so Redis expiry does the aging.
// Chained in front of the durable tier it behaves like a shared cache; alone
// it survives process restarts but not Redis restarts without persistence
// configured.
type RedisPersister struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

// RedisOption configures a RedisPersister.
type RedisOption func(*RedisPersister)

// WithKeyPrefix overrides the key namespace (default "session:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisPersister) { r.prefix = prefix }
}

// WithRedisLogger sets the persister's logger.
func WithRedisLogger(log *slog.Logger) RedisOption {
	return func(r *RedisPersister) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRedisPersister creates a Redis-backed persister over an established
// client.
func NewRedisPersister(client *redis.Client, opts ...RedisOption) *RedisPersister {
	r := &RedisPersister{
		client: client,
		prefix: DefaultRedisKeyPrefix,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisPersister) key(id string) string {
	return r.prefix + id
}

// Persist stores the record, refreshing its TTL. Nil records are ignored.
// Records that never expire by age are stored without a TTL.
func (r *RedisPersister) Persist(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Join(ErrSerialization, err)
	}
	ttl := rec.MaxInactive
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(rec.ID), payload, ttl).Err(); err != nil {
		return errors.Join(ErrPersistFailed, err)
	}
	return nil
}

// Load retrieves and decodes the record. A missing or expired key is
// ErrNotFound.
func (r *RedisPersister) Load(ctx context.Context, id string) (*Record, error) {
	payload, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}
	if rec.Attributes == nil {
		rec.Attributes = make(map[string]any)
	}
	return &rec, nil
}

// Invalidate deletes the key; deleting a missing key is a no-op.
func (r *RedisPersister) Invalidate(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// IsValid reports whether the key currently exists.
func (r *RedisPersister) IsValid(ctx context.Context, id string) bool {
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		r.log.ErrorContext(ctx, "failed to check session key", "session_id", id, "error", err)
		return false
	}
	return n == 1
}

// CleanUp is a no-op: key TTLs already age sessions out.
func (r *RedisPersister) CleanUp(context.Context) error {
	return nil
}
