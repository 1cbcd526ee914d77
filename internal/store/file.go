package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

// DefaultDirPermissions is used when creating store directories.
const DefaultDirPermissions = 0o755

// FileStore keeps one JSON document per user under a directory, named by
// the sanitized user ID. Writes go to a temp file that is renamed into
// place, so readers never observe a partial record.
type FileStore struct {
	dir string
	mu  sync.Mutex // serializes compare-and-swap within the process
}

var _ ConversationStore = (*FileStore)(nil)

// NewFileStore creates a file store rooted at the WithDir directory.
func NewFileStore(opts ...Option) (*FileStore, error) {
	cfg := applyOptions(opts)
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file store directory not set")
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create conversation directory: %w", err)
	}
	slog.Debug("FileStore.NewFileStore: ready", "dir", cfg.Dir)
	return &FileStore{dir: cfg.Dir}, nil
}

func (s *FileStore) path(userID string) (string, error) {
	name := util.SanitizeUserID(userID)
	if name == "" {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

func (s *FileStore) Get(_ context.Context, userID string) (*models.ConversationRecord, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	return s.read(userID, p)
}

func (s *FileStore) read(userID, p string) (*models.ConversationRecord, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(userID, data)
	if err != nil {
		// Corrupt files are treated as absent.
		slog.Warn("FileStore.Get: unreadable record, starting fresh", "userID", userID, "error", err)
		return nil, nil
	}
	return rec, nil
}

func (s *FileStore) CompareAndSwap(_ context.Context, userID string, old, next *models.ConversationRecord) (bool, error) {
	p, err := s.path(userID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read(userID, p)
	if err != nil {
		return false, err
	}
	if !sameVersion(cur, old) {
		return false, nil
	}
	next.Version = nextVersion(old)
	data, err := encodeRecord(next)
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(p, data); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) Close() error { return nil }

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
