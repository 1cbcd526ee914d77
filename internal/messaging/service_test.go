package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/twiliowhatsapp"
	"github.com/Bossianity/Project-WAPi/internal/whatsapp"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single line", "hello", []string{"hello"}},
		{"two lines per chunk", "a\nb\nc", []string{"a\nb", "c"}},
		{"blank only", "\n\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.text, 2, 1000)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("SplitMessage(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSplitMessageRespectsCharBudget(t *testing.T) {
	long := strings.Repeat("x", 600)
	got := SplitMessage(long+"\n"+long, 2, 1000)
	if len(got) != 2 {
		t.Fatalf("expected the two long lines in separate chunks, got %d", len(got))
	}
	for i, c := range got {
		if c != long {
			t.Errorf("chunk %d altered", i)
		}
	}
}

func TestSendChunkedAbortsOnFailure(t *testing.T) {
	old := ChunkDelay
	ChunkDelay = func() time.Duration { return 0 }
	defer func() { ChunkDelay = old }()

	svc := NewMockService()
	svc.FailTextAfter = 1
	n, err := SendChunked(context.Background(), svc, "1", "a\nb\nc\nd\ne")
	if err == nil {
		t.Fatal("expected error from failing chunk")
	}
	if n != 1 || len(svc.Texts()) != 1 {
		t.Errorf("expected exactly one delivered chunk, got n=%d sent=%d", n, len(svc.Texts()))
	}
}

func TestRenderButtonMenuNumbersOptions(t *testing.T) {
	got := RenderButtonMenu(models.ButtonMessage{
		Header: "Hello!",
		Body:   "How can I help you today?",
		Footer: "Click to choose:",
		Buttons: []models.Button{
			{ID: "button_id1", Title: "Owner"},
			{ID: "button_id2", Title: "Renter"},
			{Type: models.ButtonURL, ID: "s", Title: "Survey", URL: "https://form"},
		},
	})
	for _, want := range []string{"Hello!", "1. Owner", "2. Renter", "Survey: https://form", "Click to choose:"} {
		if !strings.Contains(got, want) {
			t.Errorf("menu missing %q:\n%s", want, got)
		}
	}
}

func TestRenderListMenu(t *testing.T) {
	got := RenderListMenu(models.ListMessage{
		Body:     "In which city?",
		Sections: []models.ListSection{{Title: "Cities", Rows: []models.ListRow{{ID: "riyadh", Title: "Riyadh"}, {ID: "jeddah", Title: "Jeddah"}}}},
	})
	if !strings.Contains(got, "2. Jeddah") {
		t.Errorf("unexpected list menu:\n%s", got)
	}
}

func TestServicesRejectSendsAfterStop(t *testing.T) {
	svcs := map[string]Service{
		"whapi":    NewWhapiService(nil),
		"twilio":   NewTwilioService(twiliowhatsapp.NewMockClient()),
		"whatsapp": NewWhatsAppService(whatsapp.NewMockClient()),
	}
	for name, svc := range svcs {
		t.Run(name, func(t *testing.T) {
			if err := svc.Start(context.Background()); err != nil {
				t.Fatalf("Start returned error: %v", err)
			}
			if err := svc.Stop(); err != nil {
				t.Fatalf("Stop returned error: %v", err)
			}
			if err := svc.SendText(context.Background(), "1", "x"); !errors.Is(err, ErrServiceStopped) {
				t.Errorf("expected ErrServiceStopped, got %v", err)
			}
			if _, ok := <-svc.Receive(); ok {
				t.Error("expected receive channel closed")
			}
			if err := svc.Stop(); err != nil {
				t.Errorf("second Stop returned error: %v", err)
			}
		})
	}
}

func TestTwilioServiceRendersButtonsAsText(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	err := svc.SendButtons(context.Background(), "971500000001@s.whatsapp.net", models.ButtonMessage{
		Body:    "Furnished?",
		Buttons: []models.Button{{ID: "button_id4", Title: "Yes"}, {ID: "button_id5", Title: "No"}},
	})
	if err != nil {
		t.Fatalf("SendButtons returned error: %v", err)
	}
	if len(mock.SentMessages) != 1 || !strings.Contains(mock.SentMessages[0].Body, "2. No") {
		t.Errorf("unexpected sends %+v", mock.SentMessages)
	}
}

func TestTwilioWebhookHandlerEmits(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	form := url.Values{"From": {"whatsapp:+971500000001"}, "Body": {"hi"}, "MessageSid": {"SM1"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/hook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	select {
	case msg := <-svc.Receive():
		if msg.Text != "hi" || msg.ID != "SM1" {
			t.Errorf("unexpected message %+v", msg)
		}
	default:
		t.Fatal("expected an emitted message")
	}

	rec = httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, httptest.NewRequest(http.MethodGet, "/twilio/hook", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("expected 405 with Allow, got %d %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestWhatsAppServiceSendImageFetchesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8, 0xff})
	}))
	defer srv.Close()
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	if err := svc.SendImage(context.Background(), "1", "Villa", srv.URL); err != nil {
		t.Fatalf("SendImage returned error: %v", err)
	}
	if len(mock.Images) != 1 || mock.Images[0] != "Villa" {
		t.Errorf("unexpected images %+v", mock.Images)
	}
}
