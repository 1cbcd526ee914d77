package whatsapp

import (
	"context"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

func TestWithDBDSNOption(t *testing.T) {
	opts := &Opts{}
	WithDBDSN("file:/tmp/wa.db?_foreign_keys=on")(opts)
	if opts.DBDSN != "file:/tmp/wa.db?_foreign_keys=on" {
		t.Errorf("unexpected DSN %q", opts.DBDSN)
	}
	WithNumericCode()(opts)
	if !opts.NumericCode {
		t.Error("expected numeric code to be enabled")
	}
}

func TestDefaultDSNEnablesForeignKeys(t *testing.T) {
	if got := DefaultDSN("/var/lib/wapi"); got != "file:/var/lib/wapi/whatsmeow.db?_foreign_keys=on" {
		t.Errorf("unexpected default DSN %q", got)
	}
}

func TestNewClientRequiresDSN(t *testing.T) {
	if _, err := NewClient(context.Background()); err == nil {
		t.Fatal("expected error without DSN")
	}
}

func TestRecipientJID(t *testing.T) {
	jid, err := recipientJID("971500000001@s.whatsapp.net")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jid.User != "971500000001" || jid.Server != types.DefaultUserServer {
		t.Errorf("unexpected JID %v", jid)
	}
	if _, err := recipientJID("abc"); err == nil {
		t.Error("expected error for recipient without digits")
	}
}

func event(msg *waE2E.Message) *events.Message {
	evt := &events.Message{Message: msg}
	evt.Info.ID = "ABC"
	evt.Info.Sender = types.NewJID("971500000001", types.DefaultUserServer)
	evt.Info.Timestamp = time.Unix(1714560000, 0)
	return evt
}

func TestToInbound(t *testing.T) {
	in, ok := ToInbound(event(&waE2E.Message{Conversation: proto.String("hello")}))
	if !ok || in.Text != "hello" || in.From != "971500000001@s.whatsapp.net" || in.ID != "ABC" {
		t.Errorf("unexpected text conversion %+v", in)
	}

	in, ok = ToInbound(event(&waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{
		SelectedButtonID: proto.String("button_id1"),
	}}))
	if !ok || !in.IsReply() || in.ReplyID != "button_id1" {
		t.Errorf("unexpected button conversion %+v", in)
	}

	in, ok = ToInbound(event(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("my villa")}}))
	if !ok || in.Type != models.MessageTypeImage || in.MediaCaption != "my villa" {
		t.Errorf("unexpected image conversion %+v", in)
	}

	if _, ok := ToInbound(event(&waE2E.Message{})); ok {
		t.Error("empty message should be ignored")
	}
}

func TestMockClientRecords(t *testing.T) {
	m := NewMockClient()
	_ = m.SendText(context.Background(), "1", "a")
	_ = m.SendImage(context.Background(), "1", "cap", []byte{1}, "image/jpeg")
	if len(m.Texts) != 1 || len(m.Images) != 1 {
		t.Errorf("unexpected recordings %+v", m)
	}
}
