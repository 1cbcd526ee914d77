// Package assistant assembles context for a user question and turns the
// language model answer into a result the dispatcher can send.
package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/genai"
	"github.com/Bossianity/Project-WAPi/internal/listings"
	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/policy"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

// Intent labels returned by the pre-pass.
const (
	IntentPropertySearch     = "property_search"
	IntentGeneralQuestion    = "general_question"
	IntentPriceClarification = "price_clarification"
)

// Defaults used when no option overrides them.
const (
	DefaultRetries        = 3
	DefaultHistoryEntries = 6
	DefaultTopK           = 5
	DefaultMaxListings    = 5
)

// Chatter sends a chat transcript to the model.
type Chatter interface {
	Chat(ctx context.Context, messages []genai.Message) (string, error)
}

// ListingSource provides structured property rows.
type ListingSource interface {
	Configured() bool
	Load(ctx context.Context) ([]models.Listing, error)
}

// Retriever returns the document chunks most similar to a query.
type Retriever interface {
	SearchText(ctx context.Context, query string, k int) ([]string, error)
}

// Request is one question to answer.
type Request struct {
	UserID   string
	Text     string
	State    models.StateLabel
	History  []models.Turn
	Language string
}

// Opts holds configuration for the assistant.
type Opts struct {
	Retries        int
	HistoryEntries int
	TopK           int
	MaxListings    int
	Listings       ListingSource
	Retriever      Retriever
	// States enables state machine mode when non-empty.
	States  []string
	Backoff func(attempt int) time.Duration
}

// Option configures Opts.
type Option func(*Opts)

// WithRetries sets the number of model attempts per request.
func WithRetries(n int) Option { return func(o *Opts) { o.Retries = n } }

// WithHistoryEntries bounds the history entries included in the prompt.
func WithHistoryEntries(n int) Option { return func(o *Opts) { o.HistoryEntries = n } }

// WithTopK sets how many document chunks are retrieved.
func WithTopK(k int) Option { return func(o *Opts) { o.TopK = k } }

// WithListings sets the listings source used for property questions.
func WithListings(src ListingSource) Option { return func(o *Opts) { o.Listings = src } }

// WithRetriever sets the document retriever used for general questions.
func WithRetriever(r Retriever) Option { return func(o *Opts) { o.Retriever = r } }

// WithStateMachine makes the model answer with the transition JSON contract
// and restricts next_state to states.
func WithStateMachine(states ...string) Option {
	return func(o *Opts) { o.States = append([]string(nil), states...) }
}

// WithBackoff overrides the delay between model attempts.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(o *Opts) { o.Backoff = fn }
}

// Assistant answers free-form questions. It is safe for concurrent use.
type Assistant struct {
	chat   Chatter
	policy *policy.Policy
	opts   Opts
}

// New creates an assistant. A nil chat makes every answer the not-configured
// text.
func New(chat Chatter, p *policy.Policy, opts ...Option) *Assistant {
	o := Opts{
		Retries:        DefaultRetries,
		HistoryEntries: DefaultHistoryEntries,
		TopK:           DefaultTopK,
		MaxListings:    DefaultMaxListings,
		Backoff:        util.Backoff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	return &Assistant{chat: chat, policy: p, opts: o}
}

// StateMachine reports whether answers carry a next state.
func (a *Assistant) StateMachine() bool { return len(a.opts.States) > 0 }

// Respond answers req. Failures degrade to canned texts; it never returns an
// empty result.
func (a *Assistant) Respond(ctx context.Context, req Request) models.Result {
	lang := req.Language
	if lang == "" {
		lang = a.policy.DefaultLanguage
	}
	if a.chat == nil {
		return a.canned(a.policy.Texts.AINotConfigured, lang)
	}

	// The pre-pass shares the attempt budget and only runs when a main
	// attempt is left after it.
	budget := a.opts.Retries
	intent, filters := IntentGeneralQuestion, map[string]models.ListingFilter(nil)
	if budget > 1 {
		var called bool
		intent, filters, called = a.analyze(ctx, req.Text)
		if called {
			budget--
		}
	}
	contextText := a.buildContext(ctx, req.Text, intent, filters)
	messages := a.buildMessages(req, lang, contextText)

	var lastErr error
	transport := false
	for attempt := 0; attempt < budget; attempt++ {
		if attempt > 0 {
			if err := util.SleepContext(ctx, a.opts.Backoff(attempt-1)); err != nil {
				slog.Warn("Assistant.Respond: cancelled during backoff", "userID", req.UserID, "error", err)
				break
			}
		}
		raw, err := a.chat.Chat(ctx, messages)
		if err != nil {
			slog.Warn("Assistant.Respond: model call failed", "userID", req.UserID, "attempt", attempt+1, "error", err)
			lastErr, transport = err, true
			continue
		}
		result, err := a.parse(raw)
		if err != nil {
			slog.Warn("Assistant.Respond: unusable model output", "userID", req.UserID, "attempt", attempt+1, "error", err)
			lastErr, transport = err, false
			continue
		}
		return result
	}

	slog.Error("Assistant.Respond: attempts exhausted", "userID", req.UserID, "attempts", a.opts.Retries, "error", lastErr)
	if transport {
		return a.canned(a.policy.Texts.TransportFailure, lang)
	}
	return a.canned(a.policy.Texts.ParseFailure, lang)
}

func (a *Assistant) parse(raw string) (models.Result, error) {
	if a.StateMachine() {
		return ParseTransition(raw, a.opts.States)
	}
	return ParseActions(raw)
}

func (a *Assistant) canned(t policy.Text, lang string) models.Result {
	text := t.In(lang, a.policy.DefaultLanguage)
	if a.StateMachine() {
		return models.TransitionResult(text, models.StateInitial)
	}
	return models.TextResult(text)
}

type analysis struct {
	Intent  string                          `json:"intent"`
	Filters map[string]models.ListingFilter `json:"filters"`
}

// analyze runs the intent pre-pass. Any failure means a general question
// without filters. called reports whether the model was asked.
func (a *Assistant) analyze(ctx context.Context, text string) (intent string, filters map[string]models.ListingFilter, called bool) {
	prompt := a.policy.Persona.IntentPrompt
	if prompt == "" || strings.TrimSpace(text) == "" {
		return IntentGeneralQuestion, nil, false
	}
	raw, err := a.chat.Chat(ctx, []genai.Message{{
		Role:    genai.RoleUser,
		Content: strings.ReplaceAll(prompt, "{text}", text),
	}})
	if err != nil {
		slog.Warn("Assistant.analyze: pre-pass failed", "error", err)
		return IntentGeneralQuestion, nil, true
	}
	var res analysis
	if err := json.Unmarshal([]byte(stripFences(raw)), &res); err != nil {
		slog.Warn("Assistant.analyze: pre-pass output not JSON", "error", err)
		return IntentGeneralQuestion, nil, true
	}
	switch res.Intent {
	case IntentPropertySearch, IntentPriceClarification:
	default:
		res.Intent = IntentGeneralQuestion
	}
	slog.Debug("Assistant.analyze", "intent", res.Intent, "filters", len(res.Filters))
	return res.Intent, res.Filters, true
}

// buildContext picks listings for property questions and retrieved
// documents otherwise.
func (a *Assistant) buildContext(ctx context.Context, text, intent string, filters map[string]models.ListingFilter) string {
	src := a.opts.Listings
	if (intent == IntentPropertySearch || listings.IsPropertyQuery(text)) && src != nil && src.Configured() {
		rows, err := src.Load(ctx)
		if err != nil {
			return listings.UnavailableContext
		}
		if len(filters) > 0 {
			rows = listings.Filter(rows, filters)
		}
		return listings.FormatContext(rows, a.opts.MaxListings)
	}

	if a.opts.Retriever == nil {
		return ""
	}
	chunks, err := a.opts.Retriever.SearchText(ctx, text, a.opts.TopK)
	if err != nil {
		slog.Warn("Assistant.buildContext: retrieval failed", "error", err)
		return ""
	}
	if len(chunks) == 0 {
		return ""
	}
	return listings.ContextHeader + "\n" + strings.Join(chunks, "\n")
}

func (a *Assistant) buildMessages(req Request, lang, contextText string) []genai.Message {
	p := a.policy.Persona
	system := p.System.In(lang, a.policy.DefaultLanguage)
	if p.ActionContract != "" && !a.StateMachine() {
		system += "\n\n" + p.ActionContract
	}
	if a.StateMachine() && p.StateContract != "" {
		states := append([]string{string(models.StateGeneralInquiry)}, a.opts.States...)
		system += "\n\n" + strings.ReplaceAll(p.StateContract, "{states}", strings.Join(states, ", "))
	}

	messages := []genai.Message{{Role: genai.RoleSystem, Content: system}}
	for _, t := range models.TrimHistory(req.History, a.opts.HistoryEntries) {
		role := genai.RoleUser
		if t.Role == models.RoleAssistant {
			role = genai.RoleAssistant
		}
		messages = append(messages, genai.Message{Role: role, Content: t.Content})
	}

	user := req.Text
	if contextText != "" {
		user = contextText + "\n\nUser Question: " + req.Text
	}
	if a.StateMachine() {
		user = "Current state: " + string(req.State) + "\n" + user
	}
	return append(messages, genai.Message{Role: genai.RoleUser, Content: user})
}
