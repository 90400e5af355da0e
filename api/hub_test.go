package api

import (
	"testing"

	leasekeeper "go-leasekeeper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub(t *testing.T) {
	var newEvent = func(name string) Event {
		return Event{Type: EventReserved, Resource: leasekeeper.Resource{Name: name}}
	}

	t.Run("should deliver events to every subscriber", func(t *testing.T) {
		// Arrange
		var (
			sut   = NewHub(4)
			a, _  = sut.Subscribe()
			b, _  = sut.Subscribe()
			event = newEvent("host-1")
		)

		// Act
		sut.Publish(event)

		// Assert
		assert.Equal(t, event, <-a)
		assert.Equal(t, event, <-b)
	})

	t.Run("should drop subscribers that fall behind", func(t *testing.T) {
		// Arrange
		var (
			sut     = NewHub(1)
			slow, _ = sut.Subscribe()
		)

		// Act
		sut.Publish(newEvent("host-1"))
		sut.Publish(newEvent("host-2"))

		// Assert
		first, ok := <-slow
		require.True(t, ok)
		assert.Equal(t, "host-1", first.Resource.Name)
		_, ok = <-slow
		assert.False(t, ok, "channel should be closed after the drop")
		assert.Equal(t, 0, sut.Len())
	})

	t.Run("should unsubscribe once", func(t *testing.T) {
		// Arrange
		var (
			sut                 = NewHub(1)
			events, unsubscribe = sut.Subscribe()
		)

		// Act
		unsubscribe()
		unsubscribe()

		// Assert
		_, ok := <-events
		assert.False(t, ok)
		assert.Equal(t, 0, sut.Len())
	})

	t.Run("should refuse subscribers after close", func(t *testing.T) {
		// Arrange
		var (
			sut       = NewHub(1)
			before, _ = sut.Subscribe()
		)

		// Act
		sut.Close()
		var after, _ = sut.Subscribe()

		// Assert
		_, ok := <-before
		assert.False(t, ok)
		_, ok = <-after
		assert.False(t, ok)
		assert.NotPanics(t, func() { sut.Publish(newEvent("host-1")) })
	})
}
