package store

import (
	"context"
	"sync"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// MemoryStore keeps records in process memory. Suitable for tests and
// single-instance deployments that accept losing history on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.ConversationRecord
}

var _ ConversationStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.ConversationRecord)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*models.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[userID].Clone(), nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, userID string, old, next *models.ConversationRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sameVersion(s.records[userID], old) {
		return false, nil
	}
	next.Version = nextVersion(old)
	s.records[userID] = next.Clone()
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
