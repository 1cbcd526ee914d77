package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

func backends(t *testing.T) map[string]ConversationStore {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := NewFileStore(WithDir(filepath.Join(dir, "files")))
	require.NoError(t, err)
	boltStore, err := NewBoltStore(WithDir(filepath.Join(dir, "bolt")))
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(dir, "sqlite", "wapi.db")))
	require.NoError(t, err)

	out := map[string]ConversationStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"bolt":   boltStore,
		"sqlite": sqliteStore,
	}
	if dsn := os.Getenv("WAPI_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		require.NoError(t, err)
		out["postgres"] = pg
	}
	if addr := os.Getenv("WAPI_TEST_REDIS_ADDR"); addr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: addr})
		t.Cleanup(func() { client.Close() })
		out["redis"] = NewRedisStore(client, WithKeyPrefix(fmt.Sprintf("wapitest%d", time.Now().UnixNano())))
	}
	for _, st := range out {
		st := st
		t.Cleanup(func() { st.Close() })
	}
	return out
}

func TestConversationStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := st.Get(ctx, "971500000001")
			require.NoError(t, err)
			assert.Nil(t, got, "unknown user should read as nil")

			rec := models.NewConversationRecord("971500000001")
			rec.AppendTurn("hello", "Welcome", 20)
			ok, err := st.CompareAndSwap(ctx, "971500000001", nil, rec)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(1), rec.Version)

			// A second create over the absent sentinel must lose.
			ok, err = st.CompareAndSwap(ctx, "971500000001", nil, models.NewConversationRecord("971500000001"))
			require.NoError(t, err)
			assert.False(t, ok)

			old, err := st.Get(ctx, "971500000001")
			require.NoError(t, err)
			require.NotNil(t, old)
			assert.Equal(t, rec.History, old.History)
			assert.Equal(t, models.StateGeneralInquiry, old.CurrentState())

			next := old.Clone()
			next.State = models.StateInitial
			ok, err = st.CompareAndSwap(ctx, "971500000001", old, next)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(2), next.Version)

			// old is now stale.
			stale := old.Clone()
			stale.State = "AWAITING_CITY_CHOICE"
			ok, err = st.CompareAndSwap(ctx, "971500000001", old, stale)
			require.NoError(t, err)
			assert.False(t, ok)

			cur, err := st.Get(ctx, "971500000001")
			require.NoError(t, err)
			assert.Equal(t, models.StateInitial, cur.State)
		})
	}
}

func TestUpdateSerializedWritersKeepEveryTurn(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const writers = 12
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					unlock := LockUser(name + "-user")
					defer unlock()
					_, err := Update(ctx, st, name+"-user", func(r *models.ConversationRecord) error {
						r.AppendTurn(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), 0)
						return nil
					})
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}
			rec, err := st.Get(ctx, name+"-user")
			require.NoError(t, err)
			assert.Len(t, rec.History, writers*2)
			assert.Equal(t, int64(writers), rec.Version)
		})
	}
}

// conflictingStore reports a lost race on every swap.
type conflictingStore struct{ *MemoryStore }

func (conflictingStore) CompareAndSwap(context.Context, string, *models.ConversationRecord, *models.ConversationRecord) (bool, error) {
	return false, nil
}

func TestUpdateGivesUpAfterRepeatedConflicts(t *testing.T) {
	calls := 0
	_, err := Update(context.Background(), conflictingStore{NewMemoryStore()}, "u", func(*models.ConversationRecord) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, DefaultUpdateAttempts, calls)
}

func TestUpdatePropagatesMutatorError(t *testing.T) {
	st := NewMemoryStore()
	boom := fmt.Errorf("boom")
	_, err := Update(context.Background(), st, "u", func(*models.ConversationRecord) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, st.Len())
}

func TestFileStoreReadsLegacyHistory(t *testing.T) {
	dir := t.TempDir()
	legacy := `[{"role":"user","parts":["Do you have villas?"]},{"role":"model","parts":["Yes, in Riyadh."]}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "966500000002.json"), []byte(legacy), 0o644))

	st, err := NewFileStore(WithDir(dir))
	require.NoError(t, err)
	rec, err := st.Get(context.Background(), "966500000002")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, rec.History, 2)
	assert.Equal(t, models.RoleAssistant, rec.History[1].Role)
	assert.Equal(t, models.StateGeneralInquiry, rec.CurrentState())

	// A legacy record can be upgraded in place.
	_, err = Update(context.Background(), st, "966500000002", func(r *models.ConversationRecord) error {
		r.State = models.StateInitial
		return nil
	})
	require.NoError(t, err)
	rec, err = st.Get(context.Background(), "966500000002")
	require.NoError(t, err)
	assert.Equal(t, models.StateInitial, rec.State)
	assert.Len(t, rec.History, 2)
}

func TestFileStoreCorruptFileReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1.json"), []byte("{not json"), 0o644))
	st, err := NewFileStore(WithDir(dir))
	require.NoError(t, err)
	rec, err := st.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDetectDSNType(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://u:p@localhost/db", "postgres"},
		{"postgresql://localhost/db", "postgres"},
		{"host=localhost dbname=wapi user=x", "postgres"},
		{"/var/lib/wapi/wapi.db", "sqlite3"},
		{"file:wapi.db?_foreign_keys=on", "sqlite3"},
		{"", "sqlite3"},
	}
	for _, tt := range tests {
		if got := DetectDSNType(tt.dsn); got != tt.want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestLockUserSerializesSameUser(t *testing.T) {
	unlock := LockUser("same")
	acquired := make(chan struct{})
	go func() {
		u := LockUser("same")
		close(acquired)
		u()
	}()
	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}

	// Different users do not block each other.
	a := LockUser("a")
	b := LockUser("b")
	a()
	b()
}
