package whapi

import (
	"encoding/json"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// WebhookPayload is the body Whapi posts to the bot callback URL.
type WebhookPayload struct {
	Messages []Message `json:"messages"`
}

// Message is one inbound message as delivered by Whapi.
type Message struct {
	ID        string `json:"id"`
	FromMe    bool   `json:"from_me"`
	Type      string `json:"type"`
	ChatID    string `json:"chat_id"`
	From      string `json:"from"`
	FromName  string `json:"from_name"`
	Timestamp int64  `json:"timestamp"`
	// T is the short timestamp key some webhook versions send instead.
	T int64 `json:"t"`

	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`

	Reply *Reply `json:"reply,omitempty"`

	// Media is the generic media block; some account versions put the same
	// fields under a key named after the message type instead.
	Media    *Media `json:"media,omitempty"`
	Image    *Media `json:"image,omitempty"`
	Video    *Media `json:"video,omitempty"`
	Audio    *Media `json:"audio,omitempty"`
	Voice    *Media `json:"voice,omitempty"`
	Document *Media `json:"document,omitempty"`
}

// Reply is a button or list selection.
type Reply struct {
	Type         string       `json:"type"`
	ButtonsReply *ReplyChoice `json:"buttons_reply,omitempty"`
	ListReply    *ReplyChoice `json:"list_reply,omitempty"`
}

// ReplyChoice identifies the selected option.
type ReplyChoice struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Media describes an attachment.
type Media struct {
	URL      string `json:"url"`
	Link     string `json:"link"`
	Caption  string `json:"caption"`
	MimeType string `json:"mime_type"`
	MediaKey string `json:"media_key"`
}

func (m *Media) url() string {
	if m.URL != "" {
		return m.URL
	}
	return m.Link
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(data []byte) (WebhookPayload, error) {
	var p WebhookPayload
	err := json.Unmarshal(data, &p)
	return p, err
}

func (m Message) media() *Media {
	for _, md := range []*Media{m.Media, m.Image, m.Video, m.Audio, m.Voice, m.Document} {
		if md != nil {
			return md
		}
	}
	return nil
}

func (m Message) unixTime() int64 {
	if m.Timestamp > 0 {
		return m.Timestamp
	}
	return m.T
}

// Inbound converts the Whapi message into the gateway-neutral form.
func (m Message) Inbound() models.InboundMessage {
	in := models.InboundMessage{
		ID:       m.ID,
		From:     m.From,
		FromName: m.FromName,
		Type:     models.MessageType(m.Type),
		FromMe:   m.FromMe,
	}
	if in.From == "" {
		in.From = m.ChatID
	}
	if ts := m.unixTime(); ts > 0 {
		in.Timestamp = time.Unix(ts, 0).UTC()
	}
	if m.Text != nil {
		in.Text = m.Text.Body
	}
	if m.Reply != nil {
		switch {
		case m.Reply.ButtonsReply != nil:
			in.ReplyKind = models.ReplyKindButton
			in.ReplyID, in.ReplyTitle = m.Reply.ButtonsReply.ID, m.Reply.ButtonsReply.Title
		case m.Reply.ListReply != nil:
			in.ReplyKind = models.ReplyKindList
			in.ReplyID, in.ReplyTitle = m.Reply.ListReply.ID, m.Reply.ListReply.Title
		}
	}
	if md := m.media(); md != nil {
		in.MediaURL = md.url()
		in.MediaCaption = md.Caption
		in.MimeType = md.MimeType
		in.MediaKey = md.MediaKey
	}
	return in
}

// InboundMessages converts every message of the payload.
func (p WebhookPayload) InboundMessages() []models.InboundMessage {
	out := make([]models.InboundMessage, 0, len(p.Messages))
	for _, m := range p.Messages {
		out = append(out, m.Inbound())
	}
	return out
}
