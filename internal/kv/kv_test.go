package kv_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Niabag/Plublista-sub000/internal/kv"
)

func TestConnect(t *testing.T) {
	t.Parallel()

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()

		_, err := kv.Connect(t.Context(), kv.Config{})
		assert.ErrorIs(t, err, kv.ErrEmptyConnectionURL)
	})

	t.Run("bad scheme", func(t *testing.T) {
		t.Parallel()

		_, err := kv.Connect(t.Context(), kv.Config{ConnectionURL: "http://localhost:6379"})
		assert.ErrorIs(t, err, kv.ErrFailedToParseRedisConnString)
	})

	t.Run("unreachable server", func(t *testing.T) {
		t.Parallel()

		_, err := kv.Connect(t.Context(), kv.Config{
			ConnectionURL:  "redis://127.0.0.1:1/0",
			RetryAttempts:  2,
			RetryInterval:  10 * time.Millisecond,
			ConnectTimeout: 2 * time.Second,
		})
		assert.ErrorIs(t, err, kv.ErrRedisNotReady)
	})
}
