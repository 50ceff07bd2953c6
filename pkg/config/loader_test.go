package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkit/flushable/pkg/config"
)

type testConfig struct {
	Name  string `env:"LOADER_TEST_NAME" envDefault:"fallback"`
	Count int    `env:"LOADER_TEST_COUNT" envDefault:"3"`
}

type requiredConfig struct {
	Token string `env:"LOADER_TEST_TOKEN,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		config.Reset()
		t.Cleanup(config.Reset)

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "fallback", cfg.Name)
		assert.Equal(t, 3, cfg.Count)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("LOADER_TEST_NAME", "from-env")
		t.Setenv("LOADER_TEST_COUNT", "42")
		config.Reset()
		t.Cleanup(config.Reset)

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from-env", cfg.Name)
		assert.Equal(t, 42, cfg.Count)
	})

	t.Run("cached between calls", func(t *testing.T) {
		t.Setenv("LOADER_TEST_NAME", "first")
		config.Reset()
		t.Cleanup(config.Reset)

		var first testConfig
		require.NoError(t, config.Load(&first))

		t.Setenv("LOADER_TEST_NAME", "second")
		var again testConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, "first", again.Name)
	})

	t.Run("reset clears the cache", func(t *testing.T) {
		t.Setenv("LOADER_TEST_NAME", "first")
		config.Reset()
		t.Cleanup(config.Reset)

		var first testConfig
		require.NoError(t, config.Load(&first))

		t.Setenv("LOADER_TEST_NAME", "second")
		config.Reset()

		var again testConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, "second", again.Name)
	})

	t.Run("missing required variable", func(t *testing.T) {
		config.Reset()
		t.Cleanup(config.Reset)

		var cfg requiredConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *testConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on failure", func(t *testing.T) {
		config.Reset()
		t.Cleanup(config.Reset)

		assert.Panics(t, func() {
			var cfg requiredConfig
			config.MustLoad(&cfg)
		})
	})

	t.Run("succeeds with defaults", func(t *testing.T) {
		config.Reset()
		t.Cleanup(config.Reset)

		var cfg testConfig
		assert.NotPanics(t, func() { config.MustLoad(&cfg) })
		assert.Equal(t, "fallback", cfg.Name)
	})
}
