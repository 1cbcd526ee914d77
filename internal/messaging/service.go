// Package messaging delivers replies through the configured WhatsApp
// provider and runs the inbound message pipeline.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/whapi"
)

const (
	// DefaultChannelBufferSize is the buffer of each inbound channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds a blocked inbound channel write.
	DefaultChannelTimeout = 1 * time.Second
)

var (
	// ErrServiceStopped is returned by sends after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
	// ErrUnauthorized is returned when the gateway rejects the credentials.
	ErrUnauthorized = whapi.ErrUnauthorized
)

// Service is a pluggable WhatsApp delivery provider.
type Service interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, caption, url string) error
	SendButtons(ctx context.Context, to string, msg models.ButtonMessage) error
	SendList(ctx context.Context, to string, msg models.ListMessage) error

	// Start begins background processing (event subscriptions).
	Start(ctx context.Context) error
	// Stop releases resources and closes the Receive channel.
	Stop() error
	// Receive yields messages from providers that push events over a
	// connection or channel rather than the /hook webhook.
	Receive() <-chan models.InboundMessage
}
