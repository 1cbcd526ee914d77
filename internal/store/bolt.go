package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// BoltFileName is the database file created inside the WithDir directory.
const BoltFileName = "conversations.bolt"

var conversationsBucket = []byte("conversations")

// BoltStore keeps records in a single embedded bbolt file. Each
// compare-and-swap runs inside one read-write transaction.
type BoltStore struct {
	db *bolt.DB
}

var _ ConversationStore = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the bolt database under the WithDir
// directory, or at the DSN path when one is given.
func NewBoltStore(opts ...Option) (*BoltStore, error) {
	cfg := applyOptions(opts)
	path := cfg.DSN
	if path == "" {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("bolt store path not set")
		}
		path = filepath.Join(cfg.Dir, BoltFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	slog.Debug("BoltStore.NewBoltStore: ready", "path", path)
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, userID string) (*models.ConversationRecord, error) {
	var rec *models.ConversationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(conversationsBucket).Get([]byte(userID))
		if data == nil {
			return nil
		}
		var err error
		rec, err = decodeRecord(userID, data)
		return err
	})
	return rec, err
}

func (s *BoltStore) CompareAndSwap(_ context.Context, userID string, old, next *models.ConversationRecord) (bool, error) {
	swapped := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		var cur *models.ConversationRecord
		if data := b.Get([]byte(userID)); data != nil {
			var err error
			if cur, err = decodeRecord(userID, data); err != nil {
				return err
			}
		}
		if !sameVersion(cur, old) {
			return nil
		}
		next.Version = nextVersion(old)
		data, err := encodeRecord(next)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(userID), data); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
