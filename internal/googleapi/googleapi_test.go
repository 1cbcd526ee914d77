package googleapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

func testOptions(srv *httptest.Server) []ClientOption {
	return []ClientOption{option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL + "/")}
}

func TestLoadCredentialsMissing(t *testing.T) {
	_, err := LoadCredentials(context.Background(), "", "")
	assert.True(t, errors.Is(err, ErrNoCredentials))

	_, err = LoadCredentials(context.Background(), "", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadCredentials(context.Background(), "{not json", "")
	assert.Error(t, err)
}

func TestSheetsValuesAndUpdate(t *testing.T) {
	var updated map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			io.WriteString(w, `{"range":"Sheet1!A1:C2","values":[["PhoneNumber","ClientName"],["9715",42]]}`)
		case http.MethodPut:
			assert.Equal(t, "USER_ENTERED", r.URL.Query().Get("valueInputOption"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
			io.WriteString(w, `{"updatedCells":1}`)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	s, err := NewSheets(context.Background(), testOptions(srv)...)
	require.NoError(t, err)

	rows, err := s.Values(context.Background(), "sheet-id", "Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"PhoneNumber", "ClientName"}, {"9715", "42"}}, rows)

	require.NoError(t, s.UpdateCell(context.Background(), "sheet-id", "Sheet1!C2", "Sent"))
	assert.Equal(t, []interface{}{[]interface{}{"Sent"}}, updated["values"])
}

func TestSheetsValuesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	s, err := NewSheets(context.Background(), testOptions(srv)...)
	require.NoError(t, err)
	_, err = s.Values(context.Background(), "missing", "Sheet1")
	assert.Error(t, err)
}

func TestDocumentText(t *testing.T) {
	doc := &docs.Document{Body: &docs.Body{Content: []*docs.StructuralElement{
		{Paragraph: &docs.Paragraph{Elements: []*docs.ParagraphElement{
			{TextRun: &docs.TextRun{Content: "Check-in is at 3pm.\n"}},
		}}},
		{Table: &docs.Table{}},
		{Paragraph: &docs.Paragraph{Elements: []*docs.ParagraphElement{
			{TextRun: &docs.TextRun{Content: "Pets are "}},
			{TextRun: &docs.TextRun{Content: "not allowed.\n"}},
		}}},
	}}}
	assert.Equal(t, "Check-in is at 3pm.\nPets are not allowed.\n", documentText(doc))
	assert.Equal(t, "", documentText(nil))
}

func TestJoinRows(t *testing.T) {
	assert.Equal(t, "a\tb\nc", joinRows([][]string{{"a", "b"}, {"c"}}))
}

func TestColumnLetterAndQuoteRange(t *testing.T) {
	assert.Equal(t, "A", ColumnLetter(0))
	assert.Equal(t, "Z", ColumnLetter(25))
	assert.Equal(t, "AA", ColumnLetter(26))
	assert.Equal(t, "AD", ColumnLetter(29))
	assert.Equal(t, "'Message Template'!A1:D3", QuoteRange("Message Template", "A1:D3"))
	assert.Equal(t, "'Owner''s'", QuoteRange("Owner's", ""))
}

func TestCalendarBusy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasSuffix(r.URL.Path, "freeBusy") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		items := req["items"].([]interface{})
		id := items[0].(map[string]interface{})["id"].(string)
		if id == "busy" {
			io.WriteString(w, `{"calendars":{"busy":{"busy":[{"start":"2030-01-01T10:00:00Z","end":"2030-01-01T11:00:00Z"}]}}}`)
			return
		}
		io.WriteString(w, `{"calendars":{"`+id+`":{"busy":[]}}}`)
	}))
	defer srv.Close()

	c, err := NewCalendar(context.Background(), testOptions(srv)...)
	require.NoError(t, err)

	from := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	busy, err := c.Busy(context.Background(), "busy", from, from.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, busy)

	busy, err = c.Busy(context.Background(), "free", from, from.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestCalendarInsert(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"ev1","htmlLink":"https://calendar.google.com/event?eid=ev1"}`)
	}))
	defer srv.Close()

	c, err := NewCalendar(context.Background(), testOptions(srv)...)
	require.NoError(t, err)

	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	link, err := c.Insert(context.Background(), "primary", Event{
		Summary:  "Viewing - WhatsApp Booking",
		Start:    start,
		End:      start.Add(time.Hour),
		TimeZone: "UTC",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://calendar.google.com/event?eid=ev1", link)
	assert.Equal(t, "Viewing - WhatsApp Booking", got["summary"])
	reminders := got["reminders"].(map[string]interface{})
	assert.Equal(t, false, reminders["useDefault"])
	assert.Len(t, reminders["overrides"], 2)
}
