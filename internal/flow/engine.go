// Package flow drives the guided button and list conversation described by
// the policy flow graph. The engine is pure: it reads a conversation record
// and an inbound selection and returns the replies to send together with
// the record changes, leaving persistence to the caller.
package flow

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/policy"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

// Input is the part of an inbound message the engine reacts to.
type Input struct {
	Text       string
	ReplyID    string
	ReplyTitle string
	Sender     string
}

// InputFrom extracts the engine input from an inbound message.
func InputFrom(msg models.InboundMessage) Input {
	return Input{
		Text:       msg.Text,
		ReplyID:    msg.ReplyID,
		ReplyTitle: msg.ReplyTitle,
		Sender:     msg.From,
	}
}

func (in Input) isReply() bool { return in.ReplyID != "" || in.ReplyTitle != "" }

// Lead is a rendered notification for a completed flow.
type Lead struct {
	Subject string
	Body    string
}

// Outcome is the result of one engine step.
type Outcome struct {
	// Handled is false when the message should go to the assistant instead.
	Handled bool

	Replies  []Reply
	Next     models.StateLabel
	Failures int
	Fields   map[string]string
	Lead     *Lead
}

// Engine evaluates the flow graph of a policy.
type Engine struct {
	policy *policy.Policy
}

// NewEngine creates an engine over p.
func NewEngine(p *policy.Policy) *Engine {
	return &Engine{policy: p}
}

// Policy returns the policy the engine was built with.
func (e *Engine) Policy() *policy.Policy { return e.policy }

// InFlow reports whether state is a node of the flow graph.
func (e *Engine) InFlow(state models.StateLabel) bool {
	_, ok := e.policy.Flow.States[string(state)]
	return ok
}

// Entry reports the flow state a message opens from outside the flow: the
// start state for a greeting, or the state bound to an entry point reply.
func (e *Engine) Entry(in Input) (models.StateLabel, bool) {
	if in.ReplyID != "" {
		for id, target := range e.policy.Flow.EntryPoints {
			if replyMatches(in.ReplyID, id) {
				return models.StateLabel(target), true
			}
		}
	}
	if !in.isReply() && e.policy.IsGreeting(in.Text) {
		return models.StateLabel(e.policy.Flow.Start), true
	}
	return "", false
}

// Start enters state with no collected fields and renders its prompt.
func (e *Engine) Start(rec *models.ConversationRecord, state models.StateLabel, in Input) Outcome {
	slog.Debug("Engine.Start", "user", rec.UserID, "state", state)
	return e.enter(string(state), map[string]string{}, e.language(rec), in.Sender)
}

// Handle advances the record's current flow state with in.
func (e *Engine) Handle(rec *models.ConversationRecord, in Input) Outcome {
	cur := string(rec.CurrentState())
	st, ok := e.policy.Flow.States[cur]
	if !ok {
		return Outcome{Next: models.StateGeneralInquiry, Fields: copyFields(rec.Fields)}
	}
	lang := e.language(rec)
	fields := copyFields(rec.Fields)

	if st.Input {
		value := strings.TrimSpace(in.Text)
		if value == "" {
			value = strings.TrimSpace(in.ReplyTitle)
		}
		if value == "" {
			return e.fail(rec, st, fields, lang, in, e.policy.Texts.EmptyInput)
		}
		if st.Field != "" {
			fields[st.Field] = value
		}
		return e.enter(e.nextState(st, "", fields), fields, lang, in.Sender)
	}

	opt, ok := match(st.OptionsFor(fields), in)
	if !ok {
		if st.Escape && !in.isReply() && strings.TrimSpace(in.Text) != "" {
			slog.Debug("Engine.Handle: free text escapes flow", "user", rec.UserID, "state", cur)
			return Outcome{Next: models.StateGeneralInquiry, Fields: fields}
		}
		return e.fail(rec, st, fields, lang, in, e.policy.Texts.InvalidSelection)
	}
	if st.Field != "" {
		fields[st.Field] = optionValue(opt, e.policy.DefaultLanguage)
	}
	slog.Debug("Engine.Handle: option selected", "user", rec.UserID, "state", cur, "option", opt.ID)
	return e.enter(e.nextState(st, opt.Next, fields), fields, lang, in.Sender)
}

func (e *Engine) fail(rec *models.ConversationRecord, st *policy.State, fields map[string]string, lang string, in Input, notice policy.Text) Outcome {
	failures := rec.Failures + 1
	if failures >= e.policy.Flow.MaxFailures {
		slog.Info("Engine.Handle: resetting flow after repeated failures", "user", rec.UserID, "state", rec.CurrentState(), "failures", failures)
		out := e.enter(e.policy.Flow.Start, map[string]string{}, lang, in.Sender)
		reset := Reply{Text: e.policy.Texts.FlowReset.In(lang, e.policy.DefaultLanguage)}
		out.Replies = append([]Reply{reset}, out.Replies...)
		return out
	}
	replies := []Reply{{Text: notice.In(lang, e.policy.DefaultLanguage)}}
	replies = append(replies, e.render(st, fields, lang, in.Sender))
	return Outcome{
		Handled:  true,
		Replies:  replies,
		Next:     rec.CurrentState(),
		Failures: failures,
		Fields:   fields,
	}
}

// enter renders the prompt of name. Terminal states hand the conversation
// back to the general inquiry state.
func (e *Engine) enter(name string, fields map[string]string, lang, sender string) Outcome {
	out := Outcome{Handled: true, Fields: fields, Next: models.StateGeneralInquiry}
	st, ok := e.policy.Flow.States[name]
	if !ok {
		return out
	}
	out.Replies = []Reply{e.render(st, fields, lang, sender)}
	if !st.Terminal {
		out.Next = models.StateLabel(name)
		return out
	}
	if st.Lead != nil {
		out.Lead = renderLead(st.Lead, vars(fields, sender))
	}
	return out
}

func (e *Engine) nextState(st *policy.State, optionNext string, fields map[string]string) string {
	if optionNext != "" {
		return optionNext
	}
	for _, b := range st.Branches {
		if strings.EqualFold(fields[b.Field], b.Equals) {
			return b.Next
		}
	}
	return st.Next
}

func (e *Engine) language(rec *models.ConversationRecord) string {
	if rec != nil && rec.Language != "" {
		return rec.Language
	}
	return e.policy.DefaultLanguage
}

// replyMatches reports whether a reply ID refers to option id. Gateways may
// prefix IDs, as in "ButtonsV3:button_id1".
func replyMatches(replyID, id string) bool {
	return replyID == id || strings.HasSuffix(replyID, ":"+id)
}

// match resolves a selection by reply ID, then by title in any language,
// then by 1-based position.
func match(options []policy.Option, in Input) (policy.Option, bool) {
	if in.ReplyID != "" {
		for _, o := range options {
			if replyMatches(in.ReplyID, o.ID) {
				return o, true
			}
		}
	}
	for _, candidate := range []string{in.ReplyTitle, in.Text} {
		for _, o := range options {
			if o.Title.Matches(candidate) {
				return o, true
			}
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(in.Text)); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	return policy.Option{}, false
}

func optionValue(o policy.Option, lang string) string {
	if o.Value != "" {
		return o.Value
	}
	return o.Title.In(policy.LangEnglish, lang)
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func vars(fields map[string]string, sender string) map[string]string {
	v := copyFields(fields)
	if _, ok := v["phone"]; !ok {
		v["phone"] = util.PhoneDigits(sender)
	}
	return v
}

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// renderLead fills the lead template. A line whose placeholders all resolve
// to empty values is dropped.
func renderLead(l *policy.Lead, values map[string]string) *Lead {
	lines := make([]string, 0, len(l.Lines))
	for _, line := range l.Lines {
		names := placeholder.FindAllStringSubmatch(line, -1)
		if len(names) > 0 {
			present := false
			for _, m := range names {
				if values[m[1]] != "" {
					present = true
					break
				}
			}
			if !present {
				continue
			}
		}
		lines = append(lines, fillAll(line, values))
	}
	return &Lead{
		Subject: fillAll(l.Subject, values),
		Body:    strings.Join(lines, "\n"),
	}
}

// fillAll is policy.Fill with unknown placeholders removed.
func fillAll(s string, values map[string]string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		return values[m[1:len(m)-1]]
	})
}
