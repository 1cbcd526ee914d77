package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio API. Interactive
// messages become numbered text menus; inbound webhooks are pushed onto
// Receive.
type TwilioService struct {
	*lifecycle
	client twiliowhatsapp.Sender
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService wraps a Twilio client (or a mock).
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{lifecycle: newLifecycle("TwilioService"), client: client}
}

// Start is a no-op for Twilio.
func (s *TwilioService) Start(context.Context) error { return nil }

func (s *TwilioService) Stop() error {
	s.stop()
	return nil
}

func (s *TwilioService) SendText(ctx context.Context, to, body string) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	return s.client.SendMessage(ctx, to, body)
}

func (s *TwilioService) SendImage(ctx context.Context, to, caption, url string) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	return s.client.SendMedia(ctx, to, caption, url)
}

func (s *TwilioService) SendButtons(ctx context.Context, to string, msg models.ButtonMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.SendText(ctx, to, RenderButtonMenu(msg))
}

func (s *TwilioService) SendList(ctx context.Context, to string, msg models.ListMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.SendText(ctx, to, RenderListMenu(msg))
}

// TwilioWebhookHandler parses an inbound Twilio webhook and emits it on
// Receive.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	msg := twiliowhatsapp.ParseInbound(r.PostForm)
	if msg.From == "" {
		slog.Warn("Twilio webhook missing sender")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	slog.Info("Inbound WhatsApp message from Twilio", "from", msg.From, "type", msg.Type)
	s.emit(msg)

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
