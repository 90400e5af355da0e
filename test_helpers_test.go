package leasekeeper_test

import (
	"context"
	"errors"
	"testing"

	leasekeeper "go-leasekeeper"

	"github.com/stretchr/testify/require"
)

func newCtx() context.Context {
	return context.Background()
}

// newSeededManager returns a manager over a memory store holding the named free resources,
// with its clock frozen at start.
func newSeededManager(t *testing.T, start int64, names ...string) (*leasekeeper.Manager, *leasekeeper.MemoryStore, *leasekeeper.ManualClock) {
	t.Helper()

	var (
		store = leasekeeper.NewMemoryStore()
		clock = leasekeeper.NewManualClock(start)
	)
	for _, name := range names {
		require.NoError(t, store.Create(newCtx(), leasekeeper.Resource{Name: name}))
	}
	return leasekeeper.NewManager(store, leasekeeper.WithClock(clock)), store, clock
}

// scriptedStore wraps a Store and lets a test inject behaviour into CompareAndSet.
type scriptedStore struct {
	leasekeeper.Store
	beforeCAS func(call int) error
	casCalls  int
}

func (s *scriptedStore) CompareAndSet(ctx context.Context, name string, expected, next leasekeeper.Lease) error {
	s.casCalls++
	if s.beforeCAS != nil {
		if err := s.beforeCAS(s.casCalls); err != nil {
			return err
		}
	}
	return s.Store.CompareAndSet(ctx, name, expected, next)
}

// brokenStore fails every call as if the backing database were down.
type brokenStore struct{}

var errDatabaseDown = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) (leasekeeper.Resource, error) {
	return leasekeeper.Resource{}, errDatabaseDown
}

func (brokenStore) List(context.Context) ([]leasekeeper.Resource, error) {
	return nil, errDatabaseDown
}

func (brokenStore) CompareAndSet(context.Context, string, leasekeeper.Lease, leasekeeper.Lease) error {
	return errDatabaseDown
}

func (brokenStore) Create(context.Context, leasekeeper.Resource) error {
	return errDatabaseDown
}

func (brokenStore) Delete(context.Context, string) error {
	return errDatabaseDown
}
