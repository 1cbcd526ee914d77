package flow

import (
	"strings"
	"testing"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/policy"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	p, err := policy.Default()
	if err != nil {
		t.Fatalf("load default policy: %v", err)
	}
	return NewEngine(p)
}

// apply mirrors what the dispatcher persists after a step.
func apply(rec *models.ConversationRecord, out Outcome) {
	rec.State = out.Next
	rec.Failures = out.Failures
	rec.Fields = out.Fields
}

func TestEntryGreetingStartsFlow(t *testing.T) {
	e := newTestEngine(t)
	state, ok := e.Entry(Input{Text: "Hello there"})
	if !ok || state != models.StateInitial {
		t.Fatalf("expected INITIAL entry, got %q %v", state, ok)
	}
	if _, ok := e.Entry(Input{Text: "what is your commission"}); ok {
		t.Error("non greeting should not enter the flow")
	}

	rec := models.NewConversationRecord("u1")
	out := e.Start(rec, state, Input{Sender: "971500000001"})
	if !out.Handled || out.Next != models.StateInitial {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(out.Replies) != 1 || out.Replies[0].Buttons == nil {
		t.Fatalf("expected one button message, got %+v", out.Replies)
	}
	b := out.Replies[0].Buttons
	if len(b.Buttons) != 3 || b.Buttons[0].ID != "button_id1" {
		t.Errorf("unexpected buttons %+v", b.Buttons)
	}
	if DetectLanguage(b.Body) != policy.LangArabic {
		t.Errorf("default language prompt should be Arabic, got %q", b.Body)
	}
}

func TestPrefixedReplyIDMatches(t *testing.T) {
	e := newTestEngine(t)
	rec := &models.ConversationRecord{UserID: "u1", State: models.StateInitial, Language: "en"}
	out := e.Handle(rec, Input{ReplyID: "ButtonsV3:button_id1", ReplyTitle: "whatever"})
	if out.Next != "AWAITING_FURNISHED_STATUS" {
		t.Fatalf("expected furnished question, got %q", out.Next)
	}
	if out.Replies[0].Buttons == nil || out.Replies[0].Buttons.Body != "Is your apartment furnished?" {
		t.Errorf("unexpected prompt %+v", out.Replies[0])
	}
}

func TestTitleMatchesInAnyLanguage(t *testing.T) {
	e := newTestEngine(t)
	rec := &models.ConversationRecord{UserID: "u1", State: "AWAITING_FURNISHED_STATUS", Language: "en"}
	out := e.Handle(rec, Input{Text: "نعم مؤثثة"})
	if out.Next != "AWAITING_NEIGHBORHOOD" {
		t.Fatalf("expected neighborhood question, got %q", out.Next)
	}
	if out.Fields["furnished"] != "furnished" {
		t.Errorf("expected furnished field, got %v", out.Fields)
	}
}

func TestIndexSelectionReachesTerminal(t *testing.T) {
	e := newTestEngine(t)
	rec := &models.ConversationRecord{UserID: "u1", State: "AWAITING_CITY_CHOICE", Language: "en"}
	out := e.Handle(rec, Input{Text: " 2 "})
	if out.Next != models.StateGeneralInquiry {
		t.Fatalf("terminal state should return to general inquiry, got %q", out.Next)
	}
	want := "You selected Jeddah. Our team will contact you about rentals in this city."
	if len(out.Replies) != 1 || out.Replies[0].Text != want {
		t.Errorf("unexpected replies %+v", out.Replies)
	}
	if out.Lead != nil {
		t.Error("rental handoff has no lead")
	}
}

func TestRepeatedFailuresReset(t *testing.T) {
	e := newTestEngine(t)
	rec := &models.ConversationRecord{UserID: "u1", State: "AWAITING_FURNISHED_STATUS", Language: "en",
		Fields: map[string]string{"x": "y"}}

	out := e.Handle(rec, Input{Text: "maybe"})
	if out.Next != "AWAITING_FURNISHED_STATUS" || out.Failures != 1 {
		t.Fatalf("first failure should reprompt, got %+v", out)
	}
	if len(out.Replies) != 2 || !strings.HasPrefix(out.Replies[0].Text, "Sorry, I didn't understand") || out.Replies[1].Buttons == nil {
		t.Errorf("unexpected reprompt %+v", out.Replies)
	}
	apply(rec, out)

	out = e.Handle(rec, Input{Text: "still maybe"})
	if out.Next != models.StateInitial || out.Failures != 0 {
		t.Fatalf("second failure should reset to INITIAL, got %+v", out)
	}
	if out.Replies[0].Text != "Sorry, I encountered an issue with that selection. Let's try starting over." {
		t.Errorf("unexpected reset text %q", out.Replies[0].Text)
	}
	if len(out.Fields) != 0 {
		t.Errorf("reset should clear fields, got %v", out.Fields)
	}
}

func TestFreeTextAtInitialEscapes(t *testing.T) {
	e := newTestEngine(t)
	rec := &models.ConversationRecord{UserID: "u1", State: models.StateInitial}
	out := e.Handle(rec, Input{Text: "what are your fees?"})
	if out.Handled || out.Next != models.StateGeneralInquiry {
		t.Fatalf("expected escape to the assistant, got %+v", out)
	}

	out = e.Handle(rec, Input{ReplyID: "unknown_button"})
	if !out.Handled || out.Failures != 1 {
		t.Errorf("unknown reply should count as a failure, got %+v", out)
	}
}

func TestInputStateRejectsEmpty(t *testing.T) {
	e := newTestEngine(t)
	rec := &models.ConversationRecord{UserID: "u1", State: "SELL_NAME", Language: "en"}
	out := e.Handle(rec, Input{Text: "   "})
	if out.Next != "SELL_NAME" || out.Failures != 1 {
		t.Fatalf("empty input should reprompt, got %+v", out)
	}
	if out.Replies[0].Text != "Please make a selection using the buttons or list provided." {
		t.Errorf("unexpected notice %q", out.Replies[0].Text)
	}
}

func TestSellFlowProducesLead(t *testing.T) {
	e := newTestEngine(t)
	rec := &models.ConversationRecord{UserID: "u1", Language: "en"}
	sender := "+971 50 123 4567"

	state, ok := e.Entry(Input{ReplyID: "ButtonsV3:button_1_id"})
	if !ok || state != "SELL_NAME" {
		t.Fatalf("expected sell entry point, got %q %v", state, ok)
	}
	out := e.Start(rec, state, Input{Sender: sender})
	apply(rec, out)
	if !strings.HasPrefix(out.Replies[0].Text, "Great! We can certainly help") {
		t.Fatalf("unexpected start prompt %+v", out.Replies)
	}

	steps := []struct {
		in   Input
		want models.StateLabel
	}{
		{Input{Text: "Sara Ali"}, "SELL_PROPERTY_TYPE"},
		{Input{ReplyID: "type_apartment"}, "SELL_CITY"},
		{Input{ReplyID: "city_dubai"}, "SELL_AREA"},
		{Input{ReplyID: "area_jvc"}, "SELL_BUILDING"},
		{Input{Text: "Tower 1"}, "SELL_PRICE"},
		{Input{Text: "1,500,000"}, models.StateGeneralInquiry},
	}
	for i, s := range steps {
		s.in.Sender = sender
		out = e.Handle(rec, s.in)
		if out.Next != s.want {
			t.Fatalf("step %d: expected %q, got %q", i, s.want, out.Next)
		}
		if s.want == "SELL_AREA" {
			list := out.Replies[0].List
			if list == nil || list.Header != "Choosing area in Dubai" || list.Rows()[0].Title != "Dubai Marina" {
				t.Fatalf("unexpected area list %+v", out.Replies[0])
			}
		}
		apply(rec, out)
	}

	if out.Lead == nil {
		t.Fatal("expected a lead on completion")
	}
	if out.Lead.Subject != "New 'For Sale' Property Lead via WhatsApp: Sara Ali" {
		t.Errorf("unexpected subject %q", out.Lead.Subject)
	}
	for _, want := range []string{
		"Client Name: Sara Ali",
		"WhatsApp Number: 971501234567",
		"Type: Apartment",
		"Area: JVC",
		"Building Name: Tower 1",
		"Asking Price: 1,500,000 AED",
	} {
		if !strings.Contains(out.Lead.Body, want) {
			t.Errorf("lead body missing %q:\n%s", want, out.Lead.Body)
		}
	}
}

func TestSellFlowVillaSkipsBuilding(t *testing.T) {
	e := newTestEngine(t)
	rec := &models.ConversationRecord{UserID: "u1", Language: "en", State: "SELL_AREA",
		Fields: map[string]string{"name": "Omar", "property_type": "Villa", "city": "Sharjah"}}

	out := e.Handle(rec, Input{ReplyID: "area_al_khan"})
	if out.Next != "SELL_PRICE" {
		t.Fatalf("villa should skip the building question, got %q", out.Next)
	}
	apply(rec, out)
	out = e.Handle(rec, Input{Text: "900000", Sender: "971500000002"})
	if out.Lead == nil || strings.Contains(out.Lead.Body, "Building Name") {
		t.Errorf("building line should be dropped, got %+v", out.Lead)
	}
}

func TestHandleUnknownState(t *testing.T) {
	e := newTestEngine(t)
	out := e.Handle(&models.ConversationRecord{UserID: "u1", State: "GONE"}, Input{Text: "hi"})
	if out.Handled || out.Next != models.StateGeneralInquiry {
		t.Errorf("unknown state should fall back to general inquiry, got %+v", out)
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"":                 "en",
		"hello":            "en",
		"مرحبا":            "ar",
		"price in درهم ?": "ar",
	}
	for in, want := range tests {
		if got := DetectLanguage(in); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFlatten(t *testing.T) {
	r := Reply{Buttons: &models.ButtonMessage{Body: "Pick", Buttons: []models.Button{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}}}
	if got := r.Flatten(); got != "Pick [Options: A | B]" {
		t.Errorf("unexpected flatten %q", got)
	}
	if got := FlattenAll([]Reply{{Text: "one"}, {Text: ""}, {Text: "two"}}); got != "one\ntwo" {
		t.Errorf("unexpected joined flatten %q", got)
	}
}
