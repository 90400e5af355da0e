package leasekeeper_test

import (
	"context"
	"testing"
	"time"

	leasekeeper "go-leasekeeper"
	"go-leasekeeper/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper(t *testing.T) {
	var newStore = func() *leasekeeper.MemoryStore {
		return leasekeeper.NewMemoryStore(
			leasekeeper.Resource{Name: "free"},
			leasekeeper.Resource{Name: "held", Lease: leasekeeper.Lease{ReservedBy: "alice", ReservedUntil: 5000}},
			leasekeeper.Resource{Name: "expired", Lease: leasekeeper.Lease{ReservedBy: "bob", ReservedUntil: 900}},
			leasekeeper.Resource{Name: "forever", Lease: leasekeeper.Lease{ReservedBy: "carol"}},
		)
	}

	t.Run("should compact only expired leases", func(t *testing.T) {
		// Arrange
		var (
			store = newStore()
			sut   = leasekeeper.NewSweeper(store, time.Second, leasekeeper.WithClock(leasekeeper.NewManualClock(1000)))
			ctx   = newCtx()
		)

		// Act
		held, compacted, err := sut.SweepOnce(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 2, held)
		assert.Equal(t, 1, compacted)

		expired, _ := store.Get(ctx, "expired")
		assert.Equal(t, leasekeeper.Lease{}, expired.Lease)
		forever, _ := store.Get(ctx, "forever")
		assert.Equal(t, "carol", forever.ReservedBy)
		stillHeld, _ := store.Get(ctx, "held")
		assert.Equal(t, "alice", stillHeld.ReservedBy)
	})

	t.Run("should skip leases renewed during the sweep", func(t *testing.T) {
		// Arrange
		var (
			inner = newStore()
			store = &scriptedStore{Store: inner}
			sut   = leasekeeper.NewSweeper(store, time.Second, leasekeeper.WithClock(leasekeeper.NewManualClock(1000)))
			ctx   = newCtx()
		)
		store.beforeCAS = func(int) error {
			return inner.CompareAndSet(ctx, "expired",
				leasekeeper.Lease{ReservedBy: "bob", ReservedUntil: 900},
				leasekeeper.Lease{ReservedBy: "dave", ReservedUntil: 4000})
		}

		// Act
		var _, compacted, err = sut.SweepOnce(ctx)
		var res, _ = inner.Get(ctx, "expired")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 0, compacted)
		assert.Equal(t, "dave", res.ReservedBy)
	})

	t.Run("should record held and compacted counts", func(t *testing.T) {
		// Arrange
		var (
			reg = prometheus.NewRegistry()
			m   = metrics.New(reg)
			sut = leasekeeper.NewSweeper(newStore(), time.Second,
				leasekeeper.WithClock(leasekeeper.NewManualClock(1000)),
				leasekeeper.WithMetrics(m))
		)

		// Act
		_, _, err := sut.SweepOnce(newCtx())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 2.0, testutil.ToFloat64(m.LeasesHeld))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ExpiredTotal))
	})

	t.Run("should return immediately when disabled", func(t *testing.T) {
		// Arrange
		var sut = leasekeeper.NewSweeper(brokenStore{}, 0)

		// Act & Assert
		assert.NotPanics(t, func() {
			sut.Run(newCtx())
		})
	})

	t.Run("should sweep until cancelled", func(t *testing.T) {
		// Arrange
		var (
			store       = newStore()
			sut         = leasekeeper.NewSweeper(store, 10*time.Millisecond, leasekeeper.WithClock(leasekeeper.NewManualClock(1000)))
			ctx, cancel = context.WithCancel(newCtx())
			done        = make(chan struct{})
		)

		// Act
		go func() {
			sut.Run(ctx)
			close(done)
		}()

		// Assert
		assert.Eventually(t, func() bool {
			var res, _ = store.Get(newCtx(), "expired")
			return res.ReservedBy == ""
		}, time.Second, 5*time.Millisecond)
		cancel()
		assert.Eventually(t, func() bool {
			select {
			case <-done:
				return true
			default:
				return false
			}
		}, time.Second, 5*time.Millisecond)
	})
}
