// Package twiliowhatsapp wraps the Twilio API for WhatsApp delivery.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

// Sender is the subset of Twilio functionality the messaging layer needs.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendMedia(ctx context.Context, to, caption, mediaURL string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	fromWhats string // "whatsapp:+1234567890"
}

var _ Sender = (*Client)(nil)

// NewClient validates the options and creates a REST client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, fromWhats: whatsappAddress(cfg.FromWhats)}, nil
}

// whatsappAddress renders a number or JID as "whatsapp:+digits".
func whatsappAddress(to string) string {
	if strings.HasPrefix(to, "whatsapp:+") {
		return to
	}
	return "whatsapp:+" + util.PhoneDigits(to)
}

// SendMessage sends a WhatsApp message using Twilio API
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsappAddress(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("Twilio message sent", "to", to)
	return nil
}

// SendMedia sends an image by URL with an optional caption.
func (c *Client) SendMedia(ctx context.Context, to, caption, mediaURL string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsappAddress(to))
	params.SetFrom(c.fromWhats)
	if caption != "" {
		params.SetBody(caption)
	}
	params.SetMediaUrl([]string{mediaURL})

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		slog.Error("Twilio SendMedia failed", "to", to, "url", mediaURL, "error", err)
		return fmt.Errorf("failed to send media to %s: %w", to, err)
	}
	slog.Debug("Twilio media sent", "to", to)
	return nil
}

// ParseInbound converts a Twilio inbound webhook form into an InboundMessage.
// Quick-reply template buttons arrive as ButtonPayload/ButtonText.
func ParseInbound(form url.Values) models.InboundMessage {
	in := models.InboundMessage{
		ID:   form.Get("MessageSid"),
		From: util.NormalizeJID(form.Get("From")),
		Type: models.MessageTypeText,
		Text: form.Get("Body"),
	}
	if in.ID == "" {
		in.ID = form.Get("SmsMessageSid")
	}
	in.FromName = form.Get("ProfileName")

	if payload := form.Get("ButtonPayload"); payload != "" {
		in.Type = models.MessageTypeReply
		in.ReplyKind = models.ReplyKindButton
		in.ReplyID = payload
		in.ReplyTitle = form.Get("ButtonText")
		return in
	}
	if n, _ := strconv.Atoi(form.Get("NumMedia")); n > 0 {
		in.MediaURL = form.Get("MediaUrl0")
		in.MimeType = form.Get("MediaContentType0")
		in.MediaCaption = in.Text
		switch {
		case strings.HasPrefix(in.MimeType, "audio/"):
			in.Type = models.MessageTypeAudio
		case strings.HasPrefix(in.MimeType, "video/"):
			in.Type = models.MessageTypeVideo
		case strings.HasPrefix(in.MimeType, "image/"):
			in.Type = models.MessageTypeImage
		default:
			in.Type = models.MessageTypeDocument
		}
	}
	return in
}

// MockClient records sends instead of calling Twilio.
type MockClient struct {
	SentMessages []SentMessage
	SentMedia    []SentMessage
	Err          error
}

// SentMessage is one recorded send.
type SentMessage struct {
	To   string
	Body string
	URL  string
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendMedia(ctx context.Context, to, caption, mediaURL string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMedia = append(m.SentMedia, SentMessage{To: to, Body: caption, URL: mediaURL})
	return nil
}
