package whatsapp

import (
	"context"
	"log/slog"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

// ToInbound converts a whatsmeow message event. The second result is false
// for messages the bot does not handle (groups, status broadcasts, empty).
func ToInbound(evt *events.Message) (models.InboundMessage, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsGroup {
		return models.InboundMessage{}, false
	}
	in := models.InboundMessage{
		ID:        string(evt.Info.ID),
		From:      util.NormalizeJID(evt.Info.Sender.User),
		FromName:  evt.Info.PushName,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
		Type:      models.MessageTypeText,
	}
	m := evt.Message
	switch {
	case m.GetConversation() != "":
		in.Text = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		in.Text = m.GetExtendedTextMessage().GetText()
	case m.GetButtonsResponseMessage() != nil:
		r := m.GetButtonsResponseMessage()
		in.Type, in.ReplyKind = models.MessageTypeReply, models.ReplyKindButton
		in.ReplyID, in.ReplyTitle = r.GetSelectedButtonID(), r.GetSelectedDisplayText()
	case m.GetTemplateButtonReplyMessage() != nil:
		r := m.GetTemplateButtonReplyMessage()
		in.Type, in.ReplyKind = models.MessageTypeReply, models.ReplyKindButton
		in.ReplyID, in.ReplyTitle = r.GetSelectedID(), r.GetSelectedDisplayText()
	case m.GetListResponseMessage() != nil:
		r := m.GetListResponseMessage()
		in.Type, in.ReplyKind = models.MessageTypeReply, models.ReplyKindList
		in.ReplyID, in.ReplyTitle = r.GetSingleSelectReply().GetSelectedRowID(), r.GetTitle()
	case m.GetImageMessage() != nil:
		in.Type = models.MessageTypeImage
		in.MediaCaption = m.GetImageMessage().GetCaption()
		in.MimeType = m.GetImageMessage().GetMimetype()
	case m.GetVideoMessage() != nil:
		in.Type = models.MessageTypeVideo
		in.MediaCaption = m.GetVideoMessage().GetCaption()
		in.MimeType = m.GetVideoMessage().GetMimetype()
	case m.GetAudioMessage() != nil:
		in.Type = models.MessageTypeAudio
		if m.GetAudioMessage().GetPTT() {
			in.Type = models.MessageTypeVoice
		}
		in.MimeType = m.GetAudioMessage().GetMimetype()
	default:
		return models.InboundMessage{}, false
	}
	return in, true
}

// DownloadAudio fetches and decrypts a voice note through whatsmeow.
func (c *Client) DownloadAudio(ctx context.Context, msg *waE2E.AudioMessage) ([]byte, error) {
	data, err := c.waClient.Download(ctx, msg)
	if err != nil {
		slog.Error("WhatsApp audio download failed", "error", err)
		return nil, err
	}
	return data, nil
}
