package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// lifecycle is the stop flag and inbound channel shared by the providers.
type lifecycle struct {
	name    string
	mu      sync.RWMutex
	stopped bool
	inbound chan models.InboundMessage
}

func newLifecycle(name string) *lifecycle {
	return &lifecycle{name: name, inbound: make(chan models.InboundMessage, DefaultChannelBufferSize)}
}

func (l *lifecycle) checkRunning() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		return ErrServiceStopped
	}
	return nil
}

func (l *lifecycle) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.inbound)
	slog.Info(l.name + " stopped and channels closed")
}

// emit pushes an inbound message without blocking the caller for long.
func (l *lifecycle) emit(msg models.InboundMessage) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		slog.Warn(l.name+" dropping inbound message (service stopped)", "from", msg.From)
		return
	}
	select {
	case l.inbound <- msg:
		slog.Debug(l.name+" inbound message forwarded", "from", msg.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(l.name+" inbound channel blocked, dropping message", "from", msg.From, "timeout", DefaultChannelTimeout)
	}
}

func (l *lifecycle) Receive() <-chan models.InboundMessage {
	return l.inbound
}
