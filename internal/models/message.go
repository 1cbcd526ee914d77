package models

import "time"

// MessageType classifies an inbound message payload.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeDocument MessageType = "document"
	MessageTypeReply    MessageType = "reply"
)

// ReplyKind distinguishes button replies from list replies.
type ReplyKind string

const (
	ReplyKindButton ReplyKind = "buttons_reply"
	ReplyKindList   ReplyKind = "list_reply"
)

// InboundMessage is a gateway-neutral view of one received WhatsApp message.
type InboundMessage struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	FromName  string      `json:"from_name,omitempty"`
	Type      MessageType `json:"type"`
	FromMe    bool        `json:"from_me"`
	Timestamp time.Time   `json:"timestamp"`

	Text string `json:"text,omitempty"`

	ReplyKind  ReplyKind `json:"reply_kind,omitempty"`
	ReplyID    string    `json:"reply_id,omitempty"`
	ReplyTitle string    `json:"reply_title,omitempty"`

	MediaURL     string `json:"media_url,omitempty"`
	MediaCaption string `json:"media_caption,omitempty"`
	MediaKey     string `json:"media_key,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`

	// MediaData holds already downloaded plaintext media, set by providers
	// that fetch attachments themselves.
	MediaData []byte `json:"-"`
}

// IsReply reports whether the message is a button or list selection.
func (m InboundMessage) IsReply() bool {
	return m.Type == MessageTypeReply && (m.ReplyID != "" || m.ReplyTitle != "")
}

// IsAudio reports whether the message carries speech.
func (m InboundMessage) IsAudio() bool {
	return m.Type == MessageTypeAudio || m.Type == MessageTypeVoice
}
