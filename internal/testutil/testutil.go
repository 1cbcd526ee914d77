// Package testutil provides HTTP and fixture helpers shared by WAPi tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/store"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes the API envelope and validates its status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}
	status, ok := response["status"].(string)
	if !ok {
		t.Errorf("response missing or invalid 'status' field")
		return response
	}
	if status != expectedStatus {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// CreateHTTPRequest creates a request with an optional JSON body. A []byte
// body is sent as is.
func CreateHTTPRequest(t TB, method, url string, body any) *http.Request {
	t.Helper()
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = bytes.NewBuffer(nil)
	case []byte:
		buf = bytes.NewBuffer(b)
	default:
		buf = bytes.NewBuffer(MustMarshalJSON(t, b))
	}
	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals v and fails the test on error.
func MustMarshalJSON(t TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals data into v and fails the test on error.
func MustUnmarshalJSON(t TB, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

// WhapiText builds one Whapi text message as it appears in a webhook.
func WhapiText(id, from, text string, at time.Time) map[string]any {
	return map[string]any{
		"id":        id,
		"from_me":   false,
		"type":      "text",
		"chat_id":   from,
		"from":      from,
		"timestamp": at.Unix(),
		"text":      map[string]any{"body": text},
	}
}

// WhapiButtonReply builds one Whapi button selection.
func WhapiButtonReply(id, from, buttonID, title string, at time.Time) map[string]any {
	return map[string]any{
		"id":        id,
		"type":      "reply",
		"chat_id":   from,
		"from":      from,
		"timestamp": at.Unix(),
		"reply": map[string]any{
			"type":          "buttons_reply",
			"buttons_reply": map[string]any{"id": buttonID, "title": title},
		},
	}
}

// WhapiPayload wraps messages in the webhook envelope.
func WhapiPayload(t TB, messages ...map[string]any) []byte {
	t.Helper()
	if messages == nil {
		messages = []map[string]any{}
	}
	return MustMarshalJSON(t, map[string]any{"messages": messages})
}

// SeedConversation stores a record with the given alternating user and
// assistant turns.
func SeedConversation(t TB, st store.ConversationStore, userID string, state models.StateLabel, turns ...string) *models.ConversationRecord {
	t.Helper()
	rec, err := store.Update(context.Background(), st, userID, func(r *models.ConversationRecord) error {
		r.State = state
		for i := 0; i+1 < len(turns); i += 2 {
			r.AppendTurn(turns[i], turns[i+1], 0)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to seed conversation %s: %v", userID, err)
	}
	return rec
}
