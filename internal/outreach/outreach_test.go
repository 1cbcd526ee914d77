package outreach

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

type fakeSheets struct {
	mu      sync.Mutex
	ranges  map[string][][]string
	readErr map[string]error
	writes  map[string]string
	order   []string
}

func (f *fakeSheets) Values(_ context.Context, _, rng string) ([][]string, error) {
	if err := f.readErr[rng]; err != nil {
		return nil, err
	}
	return f.ranges[rng], nil
}

func (f *fakeSheets) UpdateCell(_ context.Context, _, rng, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writes == nil {
		f.writes = map[string]string{}
	}
	f.writes[rng] = value
	f.order = append(f.order, rng)
	return nil
}

type sent struct {
	to      string
	text    string
	buttons *models.ButtonMessage
}

type fakeSender struct {
	mu      sync.Mutex
	msgs    []sent
	failFor map[string]bool
}

func (f *fakeSender) SendText(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to: to, text: body})
	if f.failFor[to] {
		return errors.New("gateway 500")
	}
	return nil
}

func (f *fakeSender) SendButtons(_ context.Context, to string, msg models.ButtonMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to: to, buttons: &msg})
	if f.failFor[to] {
		return errors.New("gateway 500")
	}
	return nil
}

var fixedNow = time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

func newRunner(sh Sheets, snd Sender) *Runner {
	return NewRunner(sh, snd, WithDelay(0), WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.FixedZone("GST", 4*3600)))
}

func TestRunSkipScenario(t *testing.T) {
	sh := &fakeSheets{ranges: map[string][][]string{
		"'MessageTemplate'!A1:D3": {{"Hello {ClientName}, interested in {ServiceName}?"}},
		"'Sheet1'": {
			{"PhoneNumber", "ClientName", "MessageStatus", "LastContactedDate"},
			{"+971 50 111 1111", "Sara", "Sent"},
			{"", "Nobody", ""},
			{"971502222222", "", "pending"},
		},
	}}
	snd := &fakeSender{}
	sum := newRunner(sh, snd).Run(context.Background(), "sheet-1", "971500000000")

	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 2, sum.Skipped)
	assert.NotEmpty(t, sum.CampaignID)

	require.Len(t, snd.msgs, 2)
	assert.Equal(t, "971502222222@s.whatsapp.net", snd.msgs[0].to)
	assert.Equal(t, "Hello Valued Customer, interested in our services?", snd.msgs[0].text)

	assert.Equal(t, "Sent", sh.writes["'Sheet1'!C4"])
	assert.Equal(t, "2026-05-01 12:30:00", sh.writes["'Sheet1'!D4"])
	assert.Len(t, sh.writes, 2, "skipped rows are not written")

	admin := snd.msgs[1]
	assert.Equal(t, "971500000000@s.whatsapp.net", admin.to)
	assert.Contains(t, admin.text, "Successfully Sent: 1\nFailed to Send: 0\nSkipped (already processed or no phone number): 2")
}

func TestRunInteractiveTemplateAndFailure(t *testing.T) {
	sh := &fakeSheets{ranges: map[string][][]string{
		"'MessageTemplate'!A1:D3": {
			{"INTERACTIVE", "Hi {ClientName}", "Sell with us", "sell_property"},
			{"", "We can list your {InterestedService}.", "Rent out", "rent_property"},
			{"", "Reply below", "", ""},
		},
		"'Sheet1'": {
			{"ClientName", "PhoneNumber", "InterestedService", "MessageStatus"},
			{"Omar", "971503333333", "villa", ""},
			{"Lina", "971504444444", "flat", "failed - api error"},
		},
	}}
	snd := &fakeSender{failFor: map[string]bool{"971504444444@s.whatsapp.net": true}}
	sum := newRunner(sh, snd).Run(context.Background(), "sheet-2", "")

	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, sum.Skipped)

	require.Len(t, snd.msgs, 2, "no admin notice without an admin")
	b := snd.msgs[0].buttons
	require.NotNil(t, b)
	assert.Equal(t, "Hi Omar", b.Header)
	assert.Equal(t, "We can list your villa.", b.Body)
	assert.Equal(t, "Reply below", b.Footer)
	require.Len(t, b.Buttons, 2)
	assert.Equal(t, "sell_property", b.Buttons[0].ID)

	assert.Equal(t, "Sent", sh.writes["'Sheet1'!D2"])
	assert.Equal(t, "Failed - API Error", sh.writes["'Sheet1'!D3"])
}

func TestRunMissingHeadersAborts(t *testing.T) {
	sh := &fakeSheets{ranges: map[string][][]string{
		"'Sheet1'": {{"PhoneNumber", "Name"}, {"971500000001", "x"}},
	}}
	snd := &fakeSender{}
	sum := newRunner(sh, snd).Run(context.Background(), "sheet-3", "admin@s.whatsapp.net")

	assert.Zero(t, sum.Sent+sum.Failed+sum.Skipped)
	require.Len(t, snd.msgs, 1)
	assert.Contains(t, snd.msgs[0].text, "ClientName, MessageStatus")
	assert.Empty(t, sh.writes)
}

func TestRunUnreadableContacts(t *testing.T) {
	sh := &fakeSheets{readErr: map[string]error{"'Sheet1'": errors.New("404")}}
	snd := &fakeSender{}
	sum := newRunner(sh, snd).Run(context.Background(), "sheet-4", "971500000000")
	assert.True(t, strings.HasPrefix(sum.Aborted, "Failed to read contact data from sheet 'Sheet1'"))
	require.Len(t, snd.msgs, 1)
}

func TestRunWithoutSheets(t *testing.T) {
	snd := &fakeSender{}
	sum := NewRunner(nil, snd).Run(context.Background(), "sheet-5", "971500000000")
	assert.Equal(t, "Error: Could not connect to Google Sheets service.", sum.Message())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sh := &fakeSheets{ranges: map[string][][]string{
		"'Sheet1'": {{"PhoneNumber", "ClientName", "MessageStatus"}, {"971500000001", "a", ""}},
	}}
	snd := &fakeSender{}
	sum := newRunner(sh, snd).Run(ctx, "sheet-6", "")
	assert.Zero(t, sum.Sent)
	assert.Empty(t, snd.msgs)
}

func TestParseTemplateDefaults(t *testing.T) {
	assert.Equal(t, DefaultTemplate, ParseTemplate(nil).Body)
	tmpl := ParseTemplate([][]string{{"interactive", "", "", ""}})
	assert.True(t, tmpl.Interactive)
	assert.Empty(t, tmpl.Buttons)
}

func TestParseContactsRowNumbers(t *testing.T) {
	contacts, cols, err := ParseContacts([][]string{
		{"MessageStatus", "PhoneNumber", "ClientName", "Notes"},
		{"", "1"},
		{"sent", "2", "B", "vip"},
	})
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, 2, contacts[0].Row)
	assert.Equal(t, 3, contacts[1].Row)
	assert.Equal(t, "vip", contacts[1].Extra["Notes"])
	assert.Equal(t, "", contacts[0].ClientName)
	assert.Equal(t, 0, cols["MessageStatus"])

	_, _, err = ParseContacts(nil)
	assert.Error(t, err)
}
