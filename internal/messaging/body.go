package messaging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Bossianity/Project-WAPi/internal/media"
	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/policy"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

// extractBody turns an inbound message into the text the rest of the
// pipeline works with. Media never fails the message: each failed step
// degrades to a placeholder. spoken reports whether the body is the user's
// own words (typed text or a transcript) rather than a reply id or placeholder.
func (d *Dispatcher) extractBody(ctx context.Context, msg models.InboundMessage) (body string, spoken bool) {
	switch {
	case msg.IsReply():
		if msg.ReplyTitle != "" {
			return msg.ReplyTitle, false
		}
		return msg.ReplyID, false
	case msg.IsAudio():
		return d.transcribe(ctx, msg)
	case msg.Type == models.MessageTypeImage, msg.Type == models.MessageTypeVideo, msg.Type == models.MessageTypeDocument:
		return policy.Fill(d.text(d.policy.Texts.MediaPlaceholder, policy.LangEnglish), map[string]string{
			"type":    string(msg.Type),
			"caption": msg.MediaCaption,
		}), false
	default:
		return strings.TrimSpace(msg.Text), true
	}
}

func (d *Dispatcher) transcribe(ctx context.Context, msg models.InboundMessage) (string, bool) {
	placeholder := d.text(d.policy.Texts.AudioPlaceholder, policy.LangEnglish)
	if d.opts.Transcriber == nil {
		return placeholder, false
	}
	data, err := d.audioBytes(ctx, msg)
	if err != nil {
		slog.Warn("Dispatcher.transcribe: audio unavailable", "id", msg.ID, "error", err)
		return placeholder, false
	}
	text, err := d.opts.Transcriber.Transcribe(ctx, bytes.NewReader(data), audioFilename(msg))
	if err != nil {
		slog.Warn("Dispatcher.transcribe: transcription failed", "id", msg.ID, "error", err)
		return d.text(d.policy.Texts.AudioFailed, policy.LangEnglish), false
	}
	if text = strings.TrimSpace(text); text == "" {
		return placeholder, false
	}
	slog.Debug("Dispatcher.transcribe: audio transcribed", "id", msg.ID, "chars", len(text))
	return text, true
}

func (d *Dispatcher) audioBytes(ctx context.Context, msg models.InboundMessage) ([]byte, error) {
	data := msg.MediaData
	if len(data) == 0 {
		if msg.MediaURL == "" {
			return nil, errors.New("no media url")
		}
		if d.opts.Fetcher == nil {
			return nil, errors.New("no media fetcher configured")
		}
		var err error
		data, _, err = d.opts.Fetcher.Download(ctx, msg.MediaURL)
		if err != nil {
			return nil, err
		}
	}
	if msg.MediaKey == "" {
		return data, nil
	}
	return media.Decrypt(data, msg.MediaKey, media.TypeAudio)
}

func audioFilename(msg models.InboundMessage) string {
	ext := "ogg"
	switch {
	case strings.Contains(msg.MimeType, "mpeg"):
		ext = "mp3"
	case strings.Contains(msg.MimeType, "mp4"), strings.Contains(msg.MimeType, "m4a"):
		ext = "m4a"
	case strings.Contains(msg.MimeType, "wav"):
		ext = "wav"
	}
	name := util.SanitizeUserID(msg.ID)
	if name == "" {
		name = "voice"
	}
	return name + "." + ext
}
