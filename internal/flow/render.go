package flow

import (
	"strings"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/policy"
)

const defaultListLabel = "Choose"

// Reply is one outbound message produced by the engine. Exactly one of the
// fields is set.
type Reply struct {
	Text    string
	Buttons *models.ButtonMessage
	List    *models.ListMessage
}

// Flatten renders the reply as the text stored in conversation history.
func (r Reply) Flatten() string {
	switch {
	case r.Buttons != nil:
		titles := make([]string, 0, len(r.Buttons.Buttons))
		for _, b := range r.Buttons.Buttons {
			titles = append(titles, b.Title)
		}
		return r.Buttons.Body + " [Options: " + strings.Join(titles, " | ") + "]"
	case r.List != nil:
		rows := r.List.Rows()
		titles := make([]string, 0, len(rows))
		for _, row := range rows {
			titles = append(titles, row.Title)
		}
		return r.List.Body + " [Options: " + strings.Join(titles, " | ") + "]"
	default:
		return r.Text
	}
}

// FlattenAll joins the history text of several replies.
func FlattenAll(replies []Reply) string {
	parts := make([]string, 0, len(replies))
	for _, r := range replies {
		if s := r.Flatten(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// Render returns the prompt of a flow state for a record, or false when the
// state is not part of the graph.
func (e *Engine) Render(rec *models.ConversationRecord, state models.StateLabel, sender string) (Reply, bool) {
	st, ok := e.policy.Flow.States[string(state)]
	if !ok {
		return Reply{}, false
	}
	return e.render(st, copyFields(rec.Fields), e.language(rec), sender), true
}

func (e *Engine) render(st *policy.State, fields map[string]string, lang, sender string) Reply {
	values := vars(fields, sender)
	def := e.policy.DefaultLanguage
	text := func(t policy.Text) string { return policy.Fill(t.In(lang, def), values) }

	p := st.Prompt
	options := st.OptionsFor(fields)
	kind := p.Kind
	if kind == policy.KindButtons && len(options) > models.MaxButtons {
		kind = policy.KindList
	}

	switch {
	case kind == policy.KindButtons && len(options) > 0:
		msg := &models.ButtonMessage{
			Header: text(p.Header),
			Body:   text(p.Body),
			Footer: text(p.Footer),
		}
		for _, o := range options {
			b := models.Button{Type: models.ButtonQuickReply, ID: o.ID, Title: text(o.Title)}
			if o.URL != "" {
				b.Type = models.ButtonURL
				b.URL = o.URL
			}
			msg.Buttons = append(msg.Buttons, b)
		}
		return Reply{Buttons: msg}
	case kind == policy.KindList && len(options) > 0:
		label := text(p.Label)
		if label == "" {
			label = defaultListLabel
		}
		section := models.ListSection{Title: text(p.SectionTitle)}
		for _, o := range options {
			section.Rows = append(section.Rows, models.ListRow{
				ID:          o.ID,
				Title:       text(o.Title),
				Description: text(o.Description),
			})
		}
		return Reply{List: &models.ListMessage{
			Header:   text(p.Header),
			Body:     text(p.Body),
			Footer:   text(p.Footer),
			Label:    label,
			Sections: []models.ListSection{section},
		}}
	default:
		return Reply{Text: text(p.Body)}
	}
}
