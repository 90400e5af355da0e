package mongostore

import (
	"context"
	"os"
	"strings"
	"testing"

	leasekeeper "go-leasekeeper"
	"go-leasekeeper/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	var uri = strings.TrimSpace(os.Getenv("LEASEKEEPER_TEST_MONGO"))
	if uri == "" {
		t.Skip("LEASEKEEPER_TEST_MONGO not set; skipping mongo integration test")
	}

	storetest.Run(t, func(t *testing.T) leasekeeper.Store {
		var (
			ctx        = context.Background()
			collection = "resources_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		)
		store, client, err := Connect(ctx, uri, "leasekeeper_test", collection)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = store.collection.Drop(context.Background())
			_ = client.Disconnect(context.Background())
		})
		return store
	})
}
