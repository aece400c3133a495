package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Niabag/Plublista-sub000/internal/config"
)

type cachedConfig struct {
	Bucket string `env:"CONFIG_TEST_BUCKET" envDefault:"media"`
}

type defaultsConfig struct {
	Timeout time.Duration `env:"CONFIG_TEST_TIMEOUT" envDefault:"30s"`
	Limit   int           `env:"CONFIG_TEST_LIMIT" envDefault:"40"`
}

type requiredConfig struct {
	Key string `env:"CONFIG_TEST_REQUIRED_KEY,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg defaultsConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, 40, cfg.Limit)
	})

	t.Run("cached per type", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_BUCKET", "first")
		var a cachedConfig
		require.NoError(t, config.Load(&a))

		t.Setenv("CONFIG_TEST_BUCKET", "second")
		var b cachedConfig
		require.NoError(t, config.Load(&b))

		assert.Equal(t, "first", a.Bucket)
		assert.Equal(t, "first", b.Bucket)
	})

	t.Run("missing required", func(t *testing.T) {
		var cfg requiredConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
		assert.Panics(t, func() { config.MustLoad(&cfg) })
	})

	t.Run("nil pointer", func(t *testing.T) {
		assert.ErrorIs(t, config.Load[defaultsConfig](nil), config.ErrNilPointer)
		assert.ErrorIs(t, config.Parse[defaultsConfig](nil), config.ErrNilPointer)
	})
}

func TestParse_BypassesCache(t *testing.T) {
	t.Setenv("CONFIG_TEST_LIMIT", "7")

	var cfg defaultsConfig
	require.NoError(t, config.Parse(&cfg))
	assert.Equal(t, 7, cfg.Limit)
}
