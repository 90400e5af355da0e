package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Run("should use defaults when environment is empty", func(t *testing.T) {
		// Arrange
		for _, key := range []string{
			"LEASEKEEPER_HTTP_ADDR", "LEASEKEEPER_STORE", "LEASEKEEPER_SWEEP_INTERVAL",
			"LEASEKEEPER_METRICS", "LEASEKEEPER_SERVER", "LEASEKEEPER_WATCH_BUFFER",
		} {
			t.Setenv(key, "")
		}
		t.Setenv("LEASEKEEPER_USER", "")
		t.Setenv("USER", "carol")

		// Act
		var sut = Load()

		// Assert
		assert.Equal(t, ":8080", sut.HTTPAddr)
		assert.Equal(t, "memory", sut.StoreKind)
		assert.Equal(t, 10*time.Second, sut.SweepInterval)
		assert.True(t, sut.Metrics)
		assert.Equal(t, 16, sut.WatchBuffer)
		assert.Equal(t, "http://localhost:8080", sut.ServerURL)
		assert.Equal(t, "carol", sut.User)
	})

	t.Run("should read overrides from environment", func(t *testing.T) {
		// Arrange
		t.Setenv("LEASEKEEPER_STORE", "Redis")
		t.Setenv("LEASEKEEPER_SWEEP_INTERVAL", "0s")
		t.Setenv("LEASEKEEPER_METRICS", "off")
		t.Setenv("LEASEKEEPER_SERVER", "lab:9000/")
		t.Setenv("LEASEKEEPER_USER", "dave")
		t.Setenv("LEASEKEEPER_WATCH_BUFFER", "4")

		// Act
		var sut = Load()

		// Assert
		assert.Equal(t, "redis", sut.StoreKind)
		assert.Equal(t, time.Duration(0), sut.SweepInterval)
		assert.False(t, sut.Metrics)
		assert.Equal(t, "http://lab:9000", sut.ServerURL)
		assert.Equal(t, "dave", sut.User)
		assert.Equal(t, 4, sut.WatchBuffer)
	})

	t.Run("should fall back on malformed values", func(t *testing.T) {
		// Arrange
		t.Setenv("LEASEKEEPER_READ_TIMEOUT", "soon")
		t.Setenv("LEASEKEEPER_WATCH_BUFFER", "many")
		t.Setenv("LEASEKEEPER_METRICS", "maybe")

		// Act
		var sut = Load()

		// Assert
		assert.Equal(t, 15*time.Second, sut.ReadTimeout)
		assert.Equal(t, 16, sut.WatchBuffer)
		assert.True(t, sut.Metrics)
	})
}
