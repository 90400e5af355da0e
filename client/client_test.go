package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	leasekeeper "go-leasekeeper"
	"go-leasekeeper/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	var (
		store   = leasekeeper.NewMemoryStore(leasekeeper.Resource{Name: "host-1", Description: "bench rig"})
		manager = leasekeeper.NewManager(store, leasekeeper.WithClock(leasekeeper.NewManualClock(1000)))
		server  = api.NewServer(manager)
		srv     = httptest.NewServer(server.Handler())
	)
	t.Cleanup(func() {
		server.Close()
		srv.Close()
	})
	return New(srv.URL+"/", &http.Client{Timeout: 2 * time.Second})
}

func TestClient(t *testing.T) {
	t.Run("should reserve, refuse and clear against a live server", func(t *testing.T) {
		// Arrange
		var (
			sut = newTestClient(t)
			ctx = context.Background()
		)

		// Act
		reserveErr := sut.Reserve(ctx, "host-1", "carol", 2800)
		conflictErr := sut.Reserve(ctx, "host-1", "dave", 4600)
		unauthorizedErr := sut.Clear(ctx, "host-1", "dave")
		held, getErr := sut.Get(ctx, "host-1")
		clearErr := sut.Clear(ctx, "host-1", "carol")

		// Assert
		require.NoError(t, reserveErr)
		assert.ErrorIs(t, conflictErr, leasekeeper.ErrConflict)
		assert.Contains(t, conflictErr.Error(), "held by carol")
		assert.ErrorIs(t, unauthorizedErr, leasekeeper.ErrUnauthorized)
		require.NoError(t, getErr)
		assert.Equal(t, "carol", held.ReservedBy)
		assert.Equal(t, int64(2800), held.ReservedUntil)
		assert.Equal(t, "reserved", held.State)
		require.NoError(t, clearErr)
	})

	t.Run("should manage the catalog", func(t *testing.T) {
		// Arrange
		var (
			sut = newTestClient(t)
			ctx = context.Background()
		)

		// Act
		createErr := sut.Create(ctx, leasekeeper.Resource{Name: "host-0", Description: "spare"})
		duplicateErr := sut.Create(ctx, leasekeeper.Resource{Name: "host-0"})
		listed, listErr := sut.List(ctx)
		deleteErr := sut.Delete(ctx, "host-0")
		_, missingErr := sut.Get(ctx, "host-0")

		// Assert
		require.NoError(t, createErr)
		assert.ErrorIs(t, duplicateErr, leasekeeper.ErrConflict)
		require.NoError(t, listErr)
		require.Len(t, listed, 2)
		assert.Equal(t, "host-0", listed[0].Name)
		assert.Equal(t, "host-1", listed[1].Name)
		require.NoError(t, deleteErr)
		assert.ErrorIs(t, missingErr, leasekeeper.ErrNotFound)
	})

	t.Run("should surface unexpected statuses", func(t *testing.T) {
		// Arrange
		var srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		defer srv.Close()
		var sut = New(srv.URL, nil)

		// Act
		var err = sut.Clear(context.Background(), "host-1", "carol")

		// Assert
		var statusErr *UnexpectedStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusTeapot, statusErr.Code)
		assert.Nil(t, statusErr.Unwrap())
		assert.Contains(t, err.Error(), "418")
	})
}

func TestParseDuration(t *testing.T) {
	t.Run("should accept menu labels", func(t *testing.T) {
		for _, d := range Durations {
			var seconds, err = ParseDuration(d.Label)
			require.NoError(t, err)
			assert.Equal(t, d.Seconds, seconds, d.Label)
		}
		var seconds, err = ParseDuration("1 HOUR")
		require.NoError(t, err)
		assert.Equal(t, int64(3600), seconds)
	})

	t.Run("should accept go durations and indefinite keywords", func(t *testing.T) {
		var seconds, err = ParseDuration("90m")
		require.NoError(t, err)
		assert.Equal(t, int64(5400), seconds)

		seconds, err = ParseDuration("forever")
		require.NoError(t, err)
		assert.Equal(t, int64(0), seconds)
	})

	t.Run("should reject nonsense and sub-second lengths", func(t *testing.T) {
		_, err := ParseDuration("a fortnight")
		assert.Error(t, err)
		_, err = ParseDuration("500ms")
		assert.Error(t, err)
		_, err = ParseDuration("-1h")
		assert.Error(t, err)
	})

	t.Run("should compute absolute expiry", func(t *testing.T) {
		var now = time.Unix(1000, 0)
		assert.Equal(t, int64(2800), UntilFor(now, 1800))
		assert.Equal(t, int64(0), UntilFor(now, 0))
	})
}
