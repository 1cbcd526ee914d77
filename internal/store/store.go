// Package store persists per-user conversation records and inbound message
// deduplication markers.
//
// Every backend implements ConversationStore, a compare-and-swap key/value
// contract. Callers serialize work for one user with LockUser and write
// through Update, which retries on version conflicts so concurrent writers
// in other processes never silently drop a turn.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// ErrConflict is returned by Update when the record kept changing underneath it.
var ErrConflict = errors.New("conversation record changed concurrently")

// DefaultUpdateAttempts bounds the compare-and-swap retry loop in Update.
const DefaultUpdateAttempts = 5

// ConversationStore is the persistence contract for conversation records.
type ConversationStore interface {
	// Get returns the stored record or nil, nil when the user is unknown.
	Get(ctx context.Context, userID string) (*models.ConversationRecord, error)
	// CompareAndSwap writes next if the stored record still matches old.
	// A nil old means the record must not exist yet. On success next.Version
	// is set to the new stored version.
	CompareAndSwap(ctx context.Context, userID string, old, next *models.ConversationRecord) (bool, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN       string        // database connection string or file path
	Dir       string        // directory for file based stores
	KeyPrefix string        // key namespace for shared stores
	TTL       time.Duration // expiry for dedup markers in stores that support it
}

// Option configures store backends.
type Option func(*Opts)

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDir sets the directory used by the file and bolt stores.
func WithDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// WithKeyPrefix namespaces keys in shared backends such as Redis.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) { o.KeyPrefix = prefix }
}

// WithTTL sets how long dedup markers are retained where supported.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

func applyOptions(opts []Option) Opts {
	cfg := Opts{KeyPrefix: "wapi", TTL: 24 * time.Hour}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// DetectDSNType returns "postgres" for Postgres URLs or keyword DSNs and
// "sqlite3" for anything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(strings.ToLower(dsn))
	switch {
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(d, "file:"):
		return "sqlite3"
	case strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user="):
		return "postgres"
	default:
		return "sqlite3"
	}
}

// Update loads the record for userID (or a fresh one), applies fn and writes
// it back with compare-and-swap, retrying when another writer got there
// first. fn may be invoked more than once and must not have side effects
// beyond mutating the record.
func Update(ctx context.Context, st ConversationStore, userID string, fn func(*models.ConversationRecord) error) (*models.ConversationRecord, error) {
	for attempt := 0; attempt < DefaultUpdateAttempts; attempt++ {
		old, err := st.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load record %s: %w", userID, err)
		}
		var next *models.ConversationRecord
		if old == nil {
			next = models.NewConversationRecord(userID)
		} else {
			next = old.Clone()
		}
		if err := fn(next); err != nil {
			return nil, err
		}
		next.UserID = userID
		next.UpdatedAt = time.Now().UTC()

		ok, err := st.CompareAndSwap(ctx, userID, old, next)
		if err != nil {
			return nil, fmt.Errorf("save record %s: %w", userID, err)
		}
		if ok {
			return next, nil
		}
		slog.Debug("store.Update: version conflict, retrying", "userID", userID, "attempt", attempt+1)
	}
	return nil, ErrConflict
}

// nextVersion returns the version a successful swap over old produces.
func nextVersion(old *models.ConversationRecord) int64 {
	if old == nil {
		return 1
	}
	return old.Version + 1
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

var (
	userLocksMu sync.Mutex
	userLocks   = map[string]*userLock{}
)

// LockUser serializes in-process work on one user's conversation. The
// returned function releases the lock.
func LockUser(userID string) (unlock func()) {
	userLocksMu.Lock()
	l, ok := userLocks[userID]
	if !ok {
		l = &userLock{}
		userLocks[userID] = l
	}
	l.refs++
	userLocksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		userLocksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(userLocks, userID)
		}
		userLocksMu.Unlock()
	}
}
