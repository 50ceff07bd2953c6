package session

import "time"

// Config holds the knobs for the manager and the bundled persisters.
// Twelve-factor deployments populate it from the environment via the env
// tags; everything has a working default.
type Config struct {
	// CookieName is the name of the session id cookie (default: "sid").
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"sid"`

	// SecureCookies enables the Secure flag on session cookies.
	SecureCookies bool `env:"SESSION_SECURE_COOKIES" envDefault:"false"`

	// DefaultMaxInactive is the inactivity timeout assigned to new sessions.
	DefaultMaxInactive time.Duration `env:"SESSION_MAX_INACTIVE" envDefault:"10m"`

	// MemoryMaxEntries bounds the in-memory persister.
	MemoryMaxEntries int `env:"SESSION_MEMORY_MAX_ENTRIES" envDefault:"100"`

	// MemoryExpireAfterAccess is the cache tier's idle expiry window.
	MemoryExpireAfterAccess time.Duration `env:"SESSION_MEMORY_EXPIRE_AFTER_ACCESS" envDefault:"60s"`

	// MemoryShards hints the cache tier's lock sharding (0 = NumCPU/2).
	MemoryShards int `env:"SESSION_MEMORY_SHARDS" envDefault:"0"`

	// TableName is the durable store's session table.
	TableName string `env:"SESSION_TABLE_NAME" envDefault:"session_data"`

	// RedisKeyPrefix namespaces session keys in Redis.
	RedisKeyPrefix string `env:"SESSION_REDIS_KEY_PREFIX" envDefault:"session:"`

	// TolerancePrefix is the flat-config prefix for invalidated-access
	// tolerance flags.
	TolerancePrefix string `env:"SESSION_TOLERANCE_PREFIX" envDefault:"session.ignoreinvalid"`
}

// DefaultConfig mirrors the env tag defaults.
func DefaultConfig() Config {
	return Config{
		CookieName:              "sid",
		SecureCookies:           false,
		DefaultMaxInactive:      DefaultMaxInactive,
		MemoryMaxEntries:        100,
		MemoryExpireAfterAccess: 60 * time.Second,
		MemoryShards:            0,
		TableName:               DefaultTableName,
		RedisKeyPrefix:          DefaultRedisKeyPrefix,
		TolerancePrefix:         DefaultTolerancePrefix,
	}
}
