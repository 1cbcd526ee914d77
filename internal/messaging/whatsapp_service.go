package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/whatsapp"
)

// DefaultImageFetchTimeout bounds downloading an image before upload.
const DefaultImageFetchTimeout = 20 * time.Second

// WhatsAppService implements Service on a linked device through whatsmeow.
type WhatsAppService struct {
	*lifecycle
	client   whatsapp.Sender
	waClient *whatsapp.Client // set when client is the real whatsmeow wrapper
	http     *http.Client
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService wraps the whatsmeow client (or a mock).
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{
		lifecycle: newLifecycle("WhatsAppService"),
		client:    client,
		http:      &http.Client{Timeout: DefaultImageFetchTimeout},
	}
	if wa, ok := client.(*whatsapp.Client); ok {
		s.waClient = wa
		slog.Debug("WhatsAppService created with full client for event handling")
	}
	return s
}

// Start subscribes to whatsmeow message events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if v, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(ctx, v)
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	msg, ok := whatsapp.ToInbound(evt)
	if !ok {
		return
	}
	if msg.IsAudio() && s.waClient != nil {
		if data, err := s.waClient.DownloadAudio(ctx, evt.Message.GetAudioMessage()); err == nil {
			msg.MediaData = data
		}
	}
	s.emit(msg)
}

func (s *WhatsAppService) Stop() error {
	s.stop()
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	return nil
}

func (s *WhatsAppService) SendText(ctx context.Context, to, body string) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	return s.client.SendText(ctx, to, body)
}

// SendImage fetches the image and uploads it to WhatsApp.
func (s *WhatsAppService) SendImage(ctx context.Context, to, caption, url string) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	return s.client.SendImage(ctx, to, caption, data, resp.Header.Get("Content-Type"))
}

func (s *WhatsAppService) SendButtons(ctx context.Context, to string, msg models.ButtonMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.SendText(ctx, to, RenderButtonMenu(msg))
}

func (s *WhatsAppService) SendList(ctx context.Context, to string, msg models.ListMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.SendText(ctx, to, RenderListMenu(msg))
}
