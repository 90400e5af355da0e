// Package redisstore implements leasekeeper.Store on Redis. Each resource is a hash;
// compare-and-set, create and delete run as Lua scripts so they are atomic on the server.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	leasekeeper "go-leasekeeper"

	"github.com/redis/go-redis/v9"
)

// Store keeps resources under "<prefix>:resource:<name>" and their names in "<prefix>:resources".
type Store struct {
	client redis.Cmdable
	prefix string
}

// New creates a Store. An empty prefix defaults to "leasekeeper".
func New(client redis.Cmdable, prefix string) *Store {
	var normalized = strings.TrimSpace(prefix)
	if normalized == "" {
		normalized = "leasekeeper"
	}
	return &Store{
		client: client,
		prefix: normalized,
	}
}

func (s *Store) Get(ctx context.Context, name string) (leasekeeper.Resource, error) {
	var fields, err = s.client.HGetAll(ctx, s.resourceKey(name)).Result()
	if err != nil {
		return leasekeeper.Resource{}, fmt.Errorf("redis hgetall %s: %w", name, err)
	}
	if len(fields) == 0 {
		return leasekeeper.Resource{}, leasekeeper.ErrNotFound
	}
	return decode(name, fields)
}

func (s *Store) List(ctx context.Context) ([]leasekeeper.Resource, error) {
	var names, err = s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)

	var (
		pipe = s.client.Pipeline()
		cmds = make([]*redis.MapStringStringCmd, len(names))
	)
	for i, name := range names {
		cmds[i] = pipe.HGetAll(ctx, s.resourceKey(name))
	}
	if len(names) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis pipeline: %w", err)
		}
	}

	var resources = make([]leasekeeper.Resource, 0, len(names))
	for i, cmd := range cmds {
		var fields = cmd.Val()
		if len(fields) == 0 {
			// deleted between SMEMBERS and HGETALL
			continue
		}
		res, err := decode(names[i], fields)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, nil
}

func (s *Store) CompareAndSet(ctx context.Context, name string, expected, next leasekeeper.Lease) error {
	var result, err = compareAndSetScript.Run(ctx, s.client, []string{s.resourceKey(name)},
		expected.ReservedBy, formatUntil(expected.ReservedUntil),
		next.ReservedBy, formatUntil(next.ReservedUntil),
	).Int()
	if err != nil {
		return fmt.Errorf("redis compare-and-set %s: %w", name, err)
	}
	switch result {
	case 1:
		return nil
	case -1:
		return leasekeeper.ErrNotFound
	default:
		return leasekeeper.ErrConflict
	}
}

func (s *Store) Create(ctx context.Context, res leasekeeper.Resource) error {
	if res.Name == "" {
		return fmt.Errorf("%w: name is required", leasekeeper.ErrInvalidRequest)
	}
	var fields = res.OtherFields
	if fields == nil {
		fields = map[string]string{}
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode other_fields: %w", err)
	}

	created, err := createScript.Run(ctx, s.client, []string{s.resourceKey(res.Name), s.indexKey()},
		res.Description, string(encoded), res.ReservedBy, formatUntil(res.ReservedUntil), res.Name,
	).Int()
	if err != nil {
		return fmt.Errorf("redis create %s: %w", res.Name, err)
	}
	if created == 0 {
		return leasekeeper.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	var deleted, err = deleteScript.Run(ctx, s.client, []string{s.resourceKey(name), s.indexKey()}, name).Int()
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", name, err)
	}
	if deleted == 0 {
		return leasekeeper.ErrNotFound
	}
	return nil
}

func (s *Store) resourceKey(name string) string {
	return s.prefix + ":resource:" + name
}

func (s *Store) indexKey() string {
	return s.prefix + ":resources"
}

func formatUntil(until int64) string {
	return strconv.FormatInt(until, 10)
}

func decode(name string, fields map[string]string) (leasekeeper.Resource, error) {
	var res = leasekeeper.Resource{
		Name:        name,
		Description: fields["description"],
		OtherFields: map[string]string{},
	}
	res.ReservedBy = fields["reserved_by"]

	if raw := fields["reserved_until"]; raw != "" {
		until, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return leasekeeper.Resource{}, fmt.Errorf("decode reserved_until of %s: %w", name, err)
		}
		res.ReservedUntil = until
	}
	if raw := fields["other_fields"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &res.OtherFields); err != nil {
			return leasekeeper.Resource{}, fmt.Errorf("decode other_fields of %s: %w", name, err)
		}
	}
	return res, nil
}

var compareAndSetScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local by = redis.call("HGET", KEYS[1], "reserved_by") or ""
local untilv = redis.call("HGET", KEYS[1], "reserved_until") or "0"
if by ~= ARGV[1] or untilv ~= ARGV[2] then
  return 0
end
redis.call("HSET", KEYS[1], "reserved_by", ARGV[3], "reserved_until", ARGV[4])
return 1
`)

var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "description", ARGV[1], "other_fields", ARGV[2], "reserved_by", ARGV[3], "reserved_until", ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
return 1
`)

var deleteScript = redis.NewScript(`
if redis.call("DEL", KEYS[1]) == 0 then
  return 0
end
redis.call("SREM", KEYS[2], ARGV[1])
return 1
`)
