// Package etcdstore implements leasekeeper.Store on etcd. Each resource is a JSON value under
// <prefix>/<name>; compare-and-set is a transaction guarded by the key's mod revision.
package etcdstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	leasekeeper "go-leasekeeper"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultPrefix = "/leasekeeper/resources"

type record struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	OtherFields   map[string]string `json:"other_fields"`
	ReservedBy    string            `json:"reserved_by"`
	ReservedUntil int64             `json:"reserved_until"`
}

// Store implements leasekeeper.Store using etcd.
type Store struct {
	kv     clientv3.KV
	prefix string
}

// New creates a Store over kv. An empty prefix uses /leasekeeper/resources.
func New(kv clientv3.KV, prefix string) *Store {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{kv: kv, prefix: prefix}
}

// Dial connects to a comma-separated list of endpoints. The caller closes the client.
func Dial(endpoints string) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(endpoints, ","),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd dial: %w", err)
	}
	return client, nil
}

func (s *Store) key(name string) string {
	return s.prefix + "/" + name
}

func (s *Store) Get(ctx context.Context, name string) (leasekeeper.Resource, error) {
	res, _, err := s.load(ctx, name)
	return res, err
}

func (s *Store) List(ctx context.Context) ([]leasekeeper.Resource, error) {
	resp, err := s.kv.Get(ctx, s.prefix+"/",
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("etcd list: %w", err)
	}

	var resources = make([]leasekeeper.Resource, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		res, err := decode(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("etcd decode %s: %w", kv.Key, err)
		}
		resources = append(resources, res)
	}
	return resources, nil
}

func (s *Store) CompareAndSet(ctx context.Context, name string, expected, next leasekeeper.Lease) error {
	res, rev, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if res.Lease != expected {
		return leasekeeper.ErrConflict
	}

	res.Lease = next
	value, err := encode(res)
	if err != nil {
		return err
	}

	var key = s.key(name)
	txn, err := s.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
		Then(clientv3.OpPut(key, value)).
		Commit()
	if err != nil {
		return fmt.Errorf("etcd txn %s: %w", name, err)
	}
	if !txn.Succeeded {
		// Someone wrote between our read and the transaction.
		return leasekeeper.ErrConflict
	}
	return nil
}

func (s *Store) Create(ctx context.Context, res leasekeeper.Resource) error {
	if res.Name == "" {
		return fmt.Errorf("%w: name is required", leasekeeper.ErrInvalidRequest)
	}

	value, err := encode(res)
	if err != nil {
		return err
	}

	var key = s.key(res.Name)
	txn, err := s.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value)).
		Commit()
	if err != nil {
		return fmt.Errorf("etcd txn %s: %w", res.Name, err)
	}
	if !txn.Succeeded {
		return leasekeeper.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	resp, err := s.kv.Delete(ctx, s.key(name))
	if err != nil {
		return fmt.Errorf("etcd delete %s: %w", name, err)
	}
	if resp.Deleted == 0 {
		return leasekeeper.ErrNotFound
	}
	return nil
}

func (s *Store) load(ctx context.Context, name string) (leasekeeper.Resource, int64, error) {
	resp, err := s.kv.Get(ctx, s.key(name))
	if err != nil {
		return leasekeeper.Resource{}, 0, fmt.Errorf("etcd get %s: %w", name, err)
	}
	if len(resp.Kvs) == 0 {
		return leasekeeper.Resource{}, 0, leasekeeper.ErrNotFound
	}

	var kv = resp.Kvs[0]
	res, err := decode(kv.Value)
	if err != nil {
		return leasekeeper.Resource{}, 0, fmt.Errorf("etcd decode %s: %w", name, err)
	}
	return res, kv.ModRevision, nil
}

func encode(res leasekeeper.Resource) (string, error) {
	var rec = record{
		Name:          res.Name,
		Description:   res.Description,
		OtherFields:   res.OtherFields,
		ReservedBy:    res.ReservedBy,
		ReservedUntil: res.ReservedUntil,
	}
	if rec.OtherFields == nil {
		rec.OtherFields = map[string]string{}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode resource %s: %w", res.Name, err)
	}
	return string(data), nil
}

func decode(data []byte) (leasekeeper.Resource, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return leasekeeper.Resource{}, err
	}
	if rec.OtherFields == nil {
		rec.OtherFields = map[string]string{}
	}
	return leasekeeper.Resource{
		Name:        rec.Name,
		Description: rec.Description,
		OtherFields: rec.OtherFields,
		Lease: leasekeeper.Lease{
			ReservedBy:    rec.ReservedBy,
			ReservedUntil: rec.ReservedUntil,
		},
	}, nil
}
