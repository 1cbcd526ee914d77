package messaging

import (
	"context"
	"log/slog"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// WhapiSender is the send surface of whapi.Client.
type WhapiSender interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, caption, imageURL string) error
	SendButtons(ctx context.Context, to string, msg models.ButtonMessage) error
	SendList(ctx context.Context, to string, msg models.ListMessage) error
}

// WhapiService implements Service on the Whapi.Cloud gateway. Inbound
// messages arrive on the /hook webhook, so Receive never yields.
type WhapiService struct {
	*lifecycle
	client WhapiSender
}

var _ Service = (*WhapiService)(nil)

// NewWhapiService wraps a Whapi client (or a mock).
func NewWhapiService(client WhapiSender) *WhapiService {
	return &WhapiService{lifecycle: newLifecycle("WhapiService"), client: client}
}

func (s *WhapiService) Start(context.Context) error {
	slog.Debug("WhapiService Start invoked")
	return nil
}

func (s *WhapiService) Stop() error {
	s.stop()
	return nil
}

func (s *WhapiService) SendText(ctx context.Context, to, body string) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	return s.client.SendText(ctx, to, body)
}

func (s *WhapiService) SendImage(ctx context.Context, to, caption, url string) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	return s.client.SendImage(ctx, to, caption, url)
}

func (s *WhapiService) SendButtons(ctx context.Context, to string, msg models.ButtonMessage) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	return s.client.SendButtons(ctx, to, msg)
}

func (s *WhapiService) SendList(ctx context.Context, to string, msg models.ListMessage) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	return s.client.SendList(ctx, to, msg)
}
