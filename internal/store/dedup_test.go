package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dedupBackends(t *testing.T) map[string]DedupRepo {
	t.Helper()
	sqliteStore, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "dedup.db")))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	out := map[string]DedupRepo{
		"memory": NewMemoryDedup(time.Hour),
		"sqlite": sqliteStore,
	}
	if dsn := os.Getenv("WAPI_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		require.NoError(t, err)
		t.Cleanup(func() { pg.Close() })
		out["postgres"] = pg
	}
	if addr := os.Getenv("WAPI_TEST_REDIS_ADDR"); addr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: addr})
		t.Cleanup(func() { client.Close() })
		out["redis"] = NewRedisDedup(client, WithTTL(time.Minute))
	}
	return out
}

func TestDedupRecordsOnce(t *testing.T) {
	ctx := context.Background()
	for name, d := range dedupBackends(t) {
		t.Run(name, func(t *testing.T) {
			id := "wamid." + name + time.Now().Format("150405.000000000")
			dup, err := d.IsDuplicate(ctx, id)
			require.NoError(t, err)
			assert.False(t, dup)

			fresh, err := d.RecordInbound(ctx, id, "971500000001")
			require.NoError(t, err)
			assert.True(t, fresh)

			fresh, err = d.RecordInbound(ctx, id, "971500000001")
			require.NoError(t, err)
			assert.False(t, fresh, "a redelivered message must not be recorded twice")

			dup, err = d.IsDuplicate(ctx, id)
			require.NoError(t, err)
			assert.True(t, dup)
			require.NoError(t, d.MarkProcessed(ctx, id))
		})
	}
}

func TestMemoryDedupForgetsAfterTTL(t *testing.T) {
	d := NewMemoryDedup(time.Minute)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	fresh, _ := d.RecordInbound(context.Background(), "m1", "u")
	require.True(t, fresh)

	now = now.Add(2 * time.Minute)
	dup, _ := d.IsDuplicate(context.Background(), "m1")
	assert.False(t, dup)
	fresh, _ = d.RecordInbound(context.Background(), "m1", "u")
	assert.True(t, fresh)
}
