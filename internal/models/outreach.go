package models

import "strings"

// Contact is one row of the outreach contacts sheet. Row is the 1-based
// spreadsheet row, stable for one campaign run.
type Contact struct {
	Row               int               `json:"row"`
	PhoneNumber       string            `json:"phone_number"`
	ClientName        string            `json:"client_name"`
	MessageStatus     string            `json:"message_status"`
	LastContactedDate string            `json:"last_contacted_date,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// Outreach status values written back to the contacts sheet.
const (
	ContactStatusSent   = "Sent"
	ContactStatusFailed = "Failed - API Error"
)

var terminalContactStatuses = map[string]bool{
	"sent":      true,
	"replied":   true,
	"completed": true,
	"success":   true,
}

// IsTerminalStatus reports whether a contact was already handled.
func IsTerminalStatus(status string) bool {
	return terminalContactStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// Placeholders returns the substitution values for a template, keyed by
// column header.
func (c Contact) Placeholders() map[string]string {
	out := make(map[string]string, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["PhoneNumber"] = c.PhoneNumber
	out["ClientName"] = c.ClientName
	out["MessageStatus"] = c.MessageStatus
	return out
}

// OutreachTemplate is the message sent to each contact.
type OutreachTemplate struct {
	Interactive bool     `json:"interactive"`
	Header      string   `json:"header,omitempty"`
	Body        string   `json:"body"`
	Footer      string   `json:"footer,omitempty"`
	Buttons     []Button `json:"buttons,omitempty"`
}
