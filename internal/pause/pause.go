// Package pause holds the admin-controlled pause state that gates whether
// the bot answers a given user.
package pause

import (
	"context"
	"sort"
	"sync"
)

// Registry is the pause/admin state. A user is actionable when the bot is not
// globally paused (or the user is exempt from the global pause) and the user
// is not individually paused. All mutations are idempotent.
type Registry interface {
	IsActionable(ctx context.Context, userID string) (bool, error)
	// PauseAll sets the global pause and drops exemptions left from an
	// earlier one.
	PauseAll(ctx context.Context) error
	// ResumeAll lifts the global pause and clears every individual pause and
	// exemption.
	ResumeAll(ctx context.Context) error
	// Pause silences one user.
	Pause(ctx context.Context, userID string) error
	// Resume clears the pause for one user. During a global pause the user
	// is also exempted from it.
	Resume(ctx context.Context, userID string) error
	// Exempt lets one user through the current global pause. An individual
	// pause still wins.
	Exempt(ctx context.Context, userID string) error
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	GloballyPaused bool     `json:"globally_paused"`
	Paused         []string `json:"paused"`
	Exempt         []string `json:"exempt"`
}

func actionable(global, exempt, paused bool) bool {
	return (!global || exempt) && !paused
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	global bool
	paused map[string]struct{}
	exempt map[string]struct{}
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry returns a registry with nothing paused.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		paused: make(map[string]struct{}),
		exempt: make(map[string]struct{}),
	}
}

func (r *MemoryRegistry) IsActionable(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ex := r.exempt[userID]
	_, p := r.paused[userID]
	return actionable(r.global, ex, p), nil
}

func (r *MemoryRegistry) PauseAll(context.Context) error {
	r.mu.Lock()
	r.global = true
	r.exempt = make(map[string]struct{})
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) ResumeAll(context.Context) error {
	r.mu.Lock()
	r.global = false
	r.paused = make(map[string]struct{})
	r.exempt = make(map[string]struct{})
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Pause(_ context.Context, userID string) error {
	r.mu.Lock()
	r.paused[userID] = struct{}{}
	delete(r.exempt, userID)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Resume(_ context.Context, userID string) error {
	r.mu.Lock()
	delete(r.paused, userID)
	if r.global {
		r.exempt[userID] = struct{}{}
	}
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Exempt(_ context.Context, userID string) error {
	r.mu.Lock()
	r.exempt[userID] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Snapshot(context.Context) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		GloballyPaused: r.global,
		Paused:         sortedKeys(r.paused),
		Exempt:         sortedKeys(r.exempt),
	}, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
