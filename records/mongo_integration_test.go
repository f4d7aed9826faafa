//go:build integration

package records

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := ConnectMongo(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	runStoreSuite(t, func(t *testing.T) fullStore {
		db := client.Database("gotoken_test_" + uuid.NewString()[:8])
		t.Cleanup(func() { _ = db.Drop(context.Background()) })
		s := NewMongoStore(db)
		require.NoError(t, s.EnsureIndexes(ctx))
		return s
	})
}
