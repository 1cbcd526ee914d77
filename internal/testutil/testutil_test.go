package testutil

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/store"
	"github.com/Bossianity/Project-WAPi/internal/whapi"
)

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{name: "matching status codes", expected: 200, actual: 200},
		{name: "different status codes", expected: 200, actual: 404, shouldFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v (%s)", tt.shouldFail, mockT.failed, mockT.errorMsg)
			}
			if !mockT.helper {
				t.Error("expected Helper to be called")
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus string
		shouldFail     bool
	}{
		{name: "matching status", body: `{"status":"success"}`, expectedStatus: "success"},
		{name: "different status", body: `{"status":"error","message":"x"}`, expectedStatus: "success", shouldFail: true},
		{name: "missing status", body: `{"message":"x"}`, expectedStatus: "success", shouldFail: true},
		{name: "invalid JSON", body: `not json`, expectedStatus: "success", shouldFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.body)
			mockT := &mockTestingT{}
			AssertJSONResponse(mockT, rr, tt.expectedStatus)
			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v (%s)", tt.shouldFail, mockT.failed, mockT.errorMsg)
			}
		})
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, "POST", "/hook", map[string]string{"a": "b"})
	if req.Method != "POST" || req.URL.Path != "/hook" {
		t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("expected JSON content type, got %q", got)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"a":"b"}` {
		t.Errorf("unexpected body %s", body)
	}

	raw := CreateHTTPRequest(t, "POST", "/hook", []byte("{bad"))
	body, _ = io.ReadAll(raw.Body)
	if string(body) != "{bad" {
		t.Errorf("raw body should be sent unchanged, got %s", body)
	}

	empty := CreateHTTPRequest(t, "GET", "/", nil)
	if empty.Header.Get("Content-Type") != "" {
		t.Error("GET without body should not set a content type")
	}
}

func TestWhapiPayloadParses(t *testing.T) {
	at := time.Unix(1_700_000_000, 0).UTC()
	data := WhapiPayload(t,
		WhapiText("m1", "971500000001", "hello", at),
		WhapiButtonReply("m2", "971500000001", "button_id1", "I own an apartment", at),
	)
	payload, err := whapi.ParseWebhook(data)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	msgs := payload.InboundMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "hello" || !msgs[0].Timestamp.Equal(at) {
		t.Errorf("unexpected text message %+v", msgs[0])
	}
	if !msgs[1].IsReply() || msgs[1].ReplyID != "button_id1" {
		t.Errorf("unexpected reply message %+v", msgs[1])
	}

	if !strings.Contains(string(WhapiPayload(t)), `"messages":[]`) {
		t.Error("empty payload should carry an empty messages array")
	}
}

func TestSeedConversation(t *testing.T) {
	st := store.NewMemoryStore()
	rec := SeedConversation(t, st, "u1", models.StateInitial, "hi", "hello", "price?", "5000")
	if len(rec.History) != 4 || rec.State != models.StateInitial {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.History[3].Role != models.RoleAssistant || rec.History[3].Content != "5000" {
		t.Errorf("unexpected last turn %+v", rec.History[3])
	}
}

func TestMustUnmarshalJSON(t *testing.T) {
	var target map[string]any
	MustUnmarshalJSON(t, []byte(`{"key":"value","number":123}`), &target)
	if target["key"] != "value" {
		t.Errorf("expected key to be 'value', got %v", target["key"])
	}
	if target["number"].(float64) != 123 {
		t.Errorf("expected number to be 123, got %v", target["number"])
	}

	mockT := &mockTestingT{}
	MustUnmarshalJSON(mockT, []byte(`{`), &target)
	if !mockT.failed {
		t.Error("expected invalid JSON to fail")
	}
}

// mockTestingT records failures instead of stopping the test.
type mockTestingT struct {
	failed   bool
	errorMsg string
	helper   bool
}

func (m *mockTestingT) Helper() { m.helper = true }

func (m *mockTestingT) Errorf(format string, args ...any) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Fatalf(format string, args ...any) {
	m.Errorf(format, args...)
}
