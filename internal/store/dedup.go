package store

import (
	"context"
	"sync"
	"time"
)

// DedupRepo records inbound message IDs so gateway webhook retries are not
// answered twice.
type DedupRepo interface {
	// IsDuplicate reports whether a message ID was already recorded.
	IsDuplicate(ctx context.Context, messageID string) (bool, error)
	// RecordInbound stores a new message ID. It returns false if the ID was
	// already recorded.
	RecordInbound(ctx context.Context, messageID, userID string) (bool, error)
	// MarkProcessed stamps the time the message finished processing.
	MarkProcessed(ctx context.Context, messageID string) error
}

// MemoryDedup is a process-local DedupRepo that forgets IDs after a TTL.
type MemoryDedup struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

var _ DedupRepo = (*MemoryDedup)(nil)

// NewMemoryDedup creates an in-memory dedup set. A zero ttl keeps IDs for a day.
func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDedup{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDedup) IsDuplicate(_ context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	at, ok := d.seen[messageID]
	return ok && d.now().Sub(at) < d.ttl, nil
}

func (d *MemoryDedup) RecordInbound(_ context.Context, messageID, _ string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.prune(now)
	if at, ok := d.seen[messageID]; ok && now.Sub(at) < d.ttl {
		return false, nil
	}
	d.seen[messageID] = now
	return true, nil
}

func (d *MemoryDedup) MarkProcessed(context.Context, string) error { return nil }

func (d *MemoryDedup) prune(now time.Time) {
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
