package models

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StateLabel names a node of the guided conversation graph.
type StateLabel string

const (
	// StateGeneralInquiry is the free-form state where the assistant answers.
	StateGeneralInquiry StateLabel = "GENERAL_INQUIRY"
	// StateInitial is the entry node of the guided flow.
	StateInitial StateLabel = "INITIAL"
)

// ConversationRecord is everything persisted for one end user.
type ConversationRecord struct {
	UserID    string            `json:"user_id"`
	History   []Turn            `json:"history"`
	State     StateLabel        `json:"state,omitempty"`
	Language  string            `json:"language,omitempty"`
	Failures  int               `json:"failures,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewConversationRecord returns an empty record in the general inquiry state.
func NewConversationRecord(userID string) *ConversationRecord {
	return &ConversationRecord{
		UserID: userID,
		State:  StateGeneralInquiry,
	}
}

// CurrentState returns the record state, treating an absent label as the
// general inquiry state so history-only records keep working.
func (r *ConversationRecord) CurrentState() StateLabel {
	if r == nil || r.State == "" {
		return StateGeneralInquiry
	}
	return r.State
}

// Clone returns a deep copy of the record.
func (r *ConversationRecord) Clone() *ConversationRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.History = append([]Turn(nil), r.History...)
	if r.Fields != nil {
		c.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

// AppendTurn adds a user message and the flattened reply, then trims the
// history to the most recent maxEntries entries.
func (r *ConversationRecord) AppendTurn(userText, assistantText string, maxEntries int) {
	r.History = append(r.History,
		Turn{Role: RoleUser, Content: userText},
		Turn{Role: RoleAssistant, Content: assistantText},
	)
	r.History = TrimHistory(r.History, maxEntries)
}

// SetField stores a value collected by the guided flow.
func (r *ConversationRecord) SetField(key, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[key] = value
}

// TrimHistory keeps the last maxEntries turns in their original order.
// A non-positive limit returns the history unchanged.
func TrimHistory(history []Turn, maxEntries int) []Turn {
	if maxEntries <= 0 || len(history) <= maxEntries {
		return history
	}
	out := make([]Turn, maxEntries)
	copy(out, history[len(history)-maxEntries:])
	return out
}
