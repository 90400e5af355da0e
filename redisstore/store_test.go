package redisstore

import (
	"context"
	"os"
	"strings"
	"testing"

	leasekeeper "go-leasekeeper"
	"go-leasekeeper/storetest"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) leasekeeper.Store {
		return New(newRedisTestClient(t), "leasekeeper:test:"+uuid.NewString())
	})
}

func TestNewDefaultsPrefix(t *testing.T) {
	var s = New(nil, "  ")
	if s.prefix != "leasekeeper" {
		t.Fatalf("expected default prefix, got %q", s.prefix)
	}
	if got := s.resourceKey("host-1"); got != "leasekeeper:resource:host-1" {
		t.Fatalf("unexpected resource key %q", got)
	}
}

func newRedisTestClient(t *testing.T) *redis.Client {
	t.Helper()

	var addr = strings.TrimSpace(os.Getenv("LEASEKEEPER_TEST_REDIS"))
	if addr == "" {
		t.Skip("LEASEKEEPER_TEST_REDIS not set; skipping redis integration test")
	}

	var client = redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
