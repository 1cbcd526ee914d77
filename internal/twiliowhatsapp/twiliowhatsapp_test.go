package twiliowhatsapp

import (
	"context"
	"net/url"
	"testing"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.SentMessages[0].Body)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(WithFromWhats("+1555")); err == nil {
		t.Fatal("expected error without SID and token")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("t")); err == nil {
		t.Fatal("expected error without from number")
	}
}

func TestWhatsappAddress(t *testing.T) {
	cases := map[string]string{
		"971500000001@s.whatsapp.net": "whatsapp:+971500000001",
		"+971 50 000 0001":            "whatsapp:+971500000001",
		"whatsapp:+1555":              "whatsapp:+1555",
	}
	for in, want := range cases {
		if got := whatsappAddress(in); got != want {
			t.Errorf("whatsappAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseInbound(t *testing.T) {
	text := ParseInbound(url.Values{"From": {"whatsapp:+971500000001"}, "Body": {"hello"}, "MessageSid": {"SM1"}})
	if text.From != "971500000001@s.whatsapp.net" || text.Text != "hello" || text.ID != "SM1" {
		t.Errorf("unexpected text message %+v", text)
	}

	button := ParseInbound(url.Values{"From": {"whatsapp:+1"}, "ButtonPayload": {"button_id1"}, "ButtonText": {"Owner"}})
	if !button.IsReply() || button.ReplyID != "button_id1" || button.ReplyTitle != "Owner" {
		t.Errorf("unexpected button reply %+v", button)
	}

	audio := ParseInbound(url.Values{"From": {"whatsapp:+1"}, "NumMedia": {"1"}, "MediaUrl0": {"https://api.twilio.com/m"}, "MediaContentType0": {"audio/ogg"}})
	if audio.Type != models.MessageTypeAudio || audio.MediaURL != "https://api.twilio.com/m" {
		t.Errorf("unexpected audio message %+v", audio)
	}
}
