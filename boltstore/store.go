// Package boltstore implements leasekeeper.Store on an embedded bbolt file.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	leasekeeper "go-leasekeeper"

	bolt "go.etcd.io/bbolt"
)

var resourcesBucket = []byte("resources")

// Store keeps one JSON record per resource in a single bucket. bbolt serializes write
// transactions, so compare-and-set is a plain read-compare-write inside Update.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resourcesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, name string) (leasekeeper.Resource, error) {
	if err := ctx.Err(); err != nil {
		return leasekeeper.Resource{}, err
	}

	var res leasekeeper.Resource
	err := s.db.View(func(tx *bolt.Tx) error {
		var loaded, found, err = load(tx, name)
		if err != nil {
			return err
		}
		if !found {
			return leasekeeper.ErrNotFound
		}
		res = loaded
		return nil
	})
	return res, err
}

func (s *Store) List(ctx context.Context) ([]leasekeeper.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var resources []leasekeeper.Resource
	err := s.db.View(func(tx *bolt.Tx) error {
		// bbolt iterates keys in byte order, which is name order.
		return tx.Bucket(resourcesBucket).ForEach(func(k, v []byte) error {
			var res leasekeeper.Resource
			if err := json.Unmarshal(v, &res); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			resources = append(resources, res)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return resources, nil
}

func (s *Store) CompareAndSet(ctx context.Context, name string, expected, next leasekeeper.Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		var res, found, err = load(tx, name)
		if err != nil {
			return err
		}
		if !found {
			return leasekeeper.ErrNotFound
		}
		if res.Lease != expected {
			return leasekeeper.ErrConflict
		}
		res.Lease = next
		return save(tx, res)
	})
}

func (s *Store) Create(ctx context.Context, res leasekeeper.Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if res.Name == "" {
		return fmt.Errorf("%w: name is required", leasekeeper.ErrInvalidRequest)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(resourcesBucket).Get([]byte(res.Name)) != nil {
			return leasekeeper.ErrAlreadyExists
		}
		return save(tx, res)
	})
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		var bucket = tx.Bucket(resourcesBucket)
		if bucket.Get([]byte(name)) == nil {
			return leasekeeper.ErrNotFound
		}
		return bucket.Delete([]byte(name))
	})
}

func load(tx *bolt.Tx, name string) (leasekeeper.Resource, bool, error) {
	var raw = tx.Bucket(resourcesBucket).Get([]byte(name))
	if raw == nil {
		return leasekeeper.Resource{}, false, nil
	}
	var res leasekeeper.Resource
	if err := json.Unmarshal(raw, &res); err != nil {
		return leasekeeper.Resource{}, false, fmt.Errorf("decode %s: %w", name, err)
	}
	return res, true, nil
}

func save(tx *bolt.Tx, res leasekeeper.Resource) error {
	if res.OtherFields == nil {
		res.OtherFields = map[string]string{}
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode %s: %w", res.Name, err)
	}
	return tx.Bucket(resourcesBucket).Put([]byte(res.Name), raw)
}

var _ leasekeeper.Store = (*Store)(nil)
