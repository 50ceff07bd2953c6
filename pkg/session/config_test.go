package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkit/flushable/pkg/config"
	"github.com/sessionkit/flushable/pkg/session"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := session.DefaultConfig()
	assert.Equal(t, "sid", cfg.CookieName)
	assert.False(t, cfg.SecureCookies)
	assert.Equal(t, 10*time.Minute, cfg.DefaultMaxInactive)
	assert.Equal(t, 100, cfg.MemoryMaxEntries)
	assert.Equal(t, 60*time.Second, cfg.MemoryExpireAfterAccess)
	assert.Equal(t, session.DefaultTableName, cfg.TableName)
	assert.Equal(t, session.DefaultRedisKeyPrefix, cfg.RedisKeyPrefix)
	assert.Equal(t, session.DefaultTolerancePrefix, cfg.TolerancePrefix)
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("SESSION_COOKIE_NAME", "app_session")
	t.Setenv("SESSION_MAX_INACTIVE", "30m")
	t.Setenv("SESSION_MEMORY_MAX_ENTRIES", "500")
	config.Reset()
	t.Cleanup(config.Reset)

	var cfg session.Config
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "app_session", cfg.CookieName)
	assert.Equal(t, 30*time.Minute, cfg.DefaultMaxInactive)
	assert.Equal(t, 500, cfg.MemoryMaxEntries)

	// Untouched fields keep their env defaults.
	assert.Equal(t, session.DefaultTableName, cfg.TableName)
	assert.Equal(t, session.DefaultTolerancePrefix, cfg.TolerancePrefix)
}
