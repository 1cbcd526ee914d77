// Package worker runs fire-and-forget background tasks (outreach campaigns,
// document re-indexing, lead notifications) on a small fixed pool so the
// webhook handlers can return immediately.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Bossianity/Project-WAPi/internal/recovery"
)

const (
	// DefaultSize is the number of concurrently running tasks.
	DefaultSize = 2
	// DefaultQueue is how many tasks may wait for a free worker.
	DefaultQueue = 32
)

var (
	// ErrQueueFull is returned by Submit when no slot is free.
	ErrQueueFull = errors.New("worker queue full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("worker pool stopped")
)

// Task is one unit of background work. It receives the pool context.
type Task func(ctx context.Context) error

type job struct {
	name     string
	fn       Task
	enqueued time.Time
}

// Pool is a fixed-size worker pool over a bounded queue.
type Pool struct {
	size int

	mu      sync.RWMutex
	queue   chan job
	stopped bool
	started bool
	group   *errgroup.Group
}

// New creates a pool. Non-positive values select the defaults.
func New(size, queue int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if queue <= 0 {
		queue = DefaultQueue
	}
	return &Pool{size: size, queue: make(chan job, queue)}
}

// Start launches the workers. Tasks run with ctx; cancelling it tells
// running tasks to give up but does not drop queued ones, which still get
// called (with the cancelled context) when Stop drains the queue.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.group = new(errgroup.Group)
	for i := 0; i < p.size; i++ {
		id := i
		p.group.Go(func() error {
			p.work(ctx, id)
			return nil
		})
	}
	slog.Debug("worker.Pool started", "size", p.size, "queue", cap(p.queue))
}

func (p *Pool) work(ctx context.Context, id int) {
	for j := range p.queue {
		log := slog.With("task", j.name, "worker", id)
		log.Debug("worker.Pool: task started", "waited", time.Since(j.enqueued))
		start := time.Now()
		err := recovery.Run("worker."+j.name, func() error { return j.fn(ctx) })
		if err != nil {
			log.Error("worker.Pool: task failed", "error", err, "elapsed", time.Since(start))
			continue
		}
		log.Info("worker.Pool: task finished", "elapsed", time.Since(start))
	}
}

// Submit queues fn without blocking.
func (p *Pool) Submit(name string, fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- job{name: name, fn: fn, enqueued: time.Now()}:
		slog.Debug("worker.Pool: task queued", "task", name, "pending", len(p.queue))
		return nil
	default:
		slog.Warn("worker.Pool: queue full, rejecting task", "task", name, "capacity", cap(p.queue))
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Stop refuses new tasks, lets the workers finish everything already
// submitted and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	g := p.group
	p.mu.Unlock()

	if g != nil {
		_ = g.Wait()
	}
	slog.Debug("worker.Pool stopped")
}
