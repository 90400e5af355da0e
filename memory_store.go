package leasekeeper

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Each call holds a single mutex, which makes
// CompareAndSet trivially atomic.
type MemoryStore struct {
	mu        sync.Mutex
	resources map[string]Resource
}

// NewMemoryStore creates an empty MemoryStore seeded with the given resources.
func NewMemoryStore(seed ...Resource) *MemoryStore {
	var s = &MemoryStore{
		resources: make(map[string]Resource, len(seed)),
	}
	for _, res := range seed {
		s.resources[res.Name] = res.Clone()
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, name string) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res, ok = s.resources[name]
	if !ok {
		return Resource{}, ErrNotFound
	}
	return res.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out = make([]Resource, 0, len(s.resources))
	for _, res := range s.resources {
		out = append(out, res.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) CompareAndSet(_ context.Context, name string, expected, next Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res, ok = s.resources[name]
	if !ok {
		return ErrNotFound
	}
	if res.Lease != expected {
		return ErrConflict
	}
	res.Lease = next
	s.resources[name] = res
	return nil
}

func (s *MemoryStore) Create(_ context.Context, res Resource) error {
	if res.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resources[res.Name]; exists {
		return ErrAlreadyExists
	}
	s.resources[res.Name] = res.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resources[name]; !exists {
		return ErrNotFound
	}
	delete(s.resources, name)
	return nil
}
