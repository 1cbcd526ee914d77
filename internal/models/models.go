// Package models defines the core data structures for WAPi.
//
// It includes the conversation record, inbound message, assistant result and
// spreadsheet row types, which are shared across modules.
package models

import "errors"

// Validation errors for outbound interactive messages.
var (
	ErrEmptyRecipient  = errors.New("recipient cannot be empty")
	ErrEmptyBody       = errors.New("body is required")
	ErrTooManyButtons  = errors.New("too many buttons")
	ErrNoButtons       = errors.New("at least one button is required")
	ErrEmptyButton     = errors.New("button title and id are required")
	ErrNoListRows      = errors.New("list requires at least one row")
	ErrButtonURLNeeded = errors.New("url button requires a url")
)

// MaxButtons is the most quick-reply or url buttons a gateway accepts per message.
const MaxButtons = 3

// Webhook response statuses.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusNoMessages = "success_no_messages"
)

// APIResponse is the JSON envelope of every webhook and health response.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// Success wraps a result.
func Success(result any) APIResponse {
	return APIResponse{Status: StatusSuccess, Result: result}
}

// SuccessWithMessage wraps a result with a human-readable message.
func SuccessWithMessage(message string, result any) APIResponse {
	return APIResponse{Status: StatusSuccess, Message: message, Result: result}
}

// NoMessages answers a webhook call whose batch was empty.
func NoMessages() APIResponse {
	return APIResponse{Status: StatusNoMessages}
}

// Error reports a failed request.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Message: message}
}
