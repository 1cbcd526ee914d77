// Package policy holds the business configuration consumed by the pipeline:
// persona text, canned replies, greeting words and the guided flow graph.
// An embedded default is loaded first; an optional YAML file overrides it.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Language codes used by the default policy.
const (
	LangArabic  = "ar"
	LangEnglish = "en"
)

// Reserved state names shared with the conversation record.
const (
	StateGeneralInquiry = "GENERAL_INQUIRY"
	StateInitial        = "INITIAL"
)

// Prompt kinds.
const (
	KindText    = "text"
	KindButtons = "buttons"
	KindList    = "list"
)

// Text is a message keyed by language code.
type Text map[string]string

// In returns the text for lang, falling back to fallback, then English,
// then any available language.
func (t Text) In(lang, fallback string) string {
	if s, ok := t[lang]; ok && s != "" {
		return s
	}
	if s, ok := t[fallback]; ok && s != "" {
		return s
	}
	if s, ok := t[LangEnglish]; ok && s != "" {
		return s
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t[k] != "" {
			return t[k]
		}
	}
	return ""
}

// Matches reports whether s equals the text in any language, ignoring case
// and surrounding space.
func (t Text) Matches(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, v := range t {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

// Policy is the full business configuration.
type Policy struct {
	DefaultLanguage string `yaml:"default_language"`

	Persona Persona `yaml:"persona"`

	// Greetings start the guided flow from the general inquiry state.
	Greetings []string `yaml:"greetings"`

	SchedulingKeywords []string `yaml:"scheduling_keywords"`

	Texts Texts `yaml:"texts"`

	Flow Flow `yaml:"flow"`
}

// Persona is the system prompt per language plus the output contracts
// appended to it.
type Persona struct {
	System Text `yaml:"system"`

	// ActionContract documents the image and gallery markers.
	ActionContract string `yaml:"action_contract"`

	// StateContract documents the JSON object returned in state machine
	// mode. "{states}" is replaced with the allowed state names.
	StateContract string `yaml:"state_contract"`

	// IntentPrompt is the pre-pass classification prompt. "{text}" is
	// replaced with the user message.
	IntentPrompt string `yaml:"intent_prompt"`
}

// Texts are the canned replies used outside the language model.
type Texts struct {
	AINotConfigured   Text `yaml:"ai_not_configured"`
	TransportFailure  Text `yaml:"transport_failure"`
	ParseFailure      Text `yaml:"parse_failure"`
	ImageFailed       Text `yaml:"image_failed"`
	InvalidSelection  Text `yaml:"invalid_selection"`
	FlowReset         Text `yaml:"flow_reset"`
	EmptyInput        Text `yaml:"empty_input"`
	AudioPlaceholder  Text `yaml:"audio_placeholder"`
	AudioFailed       Text `yaml:"audio_failed"`
	MediaPlaceholder  Text `yaml:"media_placeholder"`
	PausedAll         Text `yaml:"paused_all"`
	ResumedAll        Text `yaml:"resumed_all"`
	PausedUser        Text `yaml:"paused_user"`
	ResumedUser       Text `yaml:"resumed_user"`
	PauseUsage        Text `yaml:"pause_usage"`
	ResumeUsage       Text `yaml:"resume_usage"`
	ExemptedUser      Text `yaml:"exempted_user"`
	ExemptUsage       Text `yaml:"exempt_usage"`
	OutreachStarted   Text `yaml:"outreach_started"`
	OutreachNoSheet   Text `yaml:"outreach_no_sheet"`
	OutreachBadSheet  Text `yaml:"outreach_bad_sheet"`
	OutreachQueueFull Text `yaml:"outreach_queue_full"`
	OutreachDisabled  Text `yaml:"outreach_disabled"`
	UnansweredNotice  Text `yaml:"unanswered_notice"`
}

// Flow is the guided conversation graph.
type Flow struct {
	Start       string `yaml:"start"`
	MaxFailures int    `yaml:"max_failures"`

	// EntryPoints maps a reply ID received outside any flow to the state it
	// opens.
	EntryPoints map[string]string `yaml:"entry_points"`

	States map[string]*State `yaml:"states"`
}

// State is one node of the flow graph. A state either offers options,
// accepts free text (Input), or is terminal.
type State struct {
	Prompt Prompt `yaml:"prompt"`

	Options   []Option   `yaml:"options,omitempty"`
	OptionsBy *OptionSet `yaml:"options_by,omitempty"`

	// Input accepts any non-empty text as the value of Field.
	Input bool `yaml:"input,omitempty"`

	// Field receives the chosen option value or the typed input.
	Field string `yaml:"field,omitempty"`

	Next     string   `yaml:"next,omitempty"`
	Branches []Branch `yaml:"branches,omitempty"`

	// Escape lets free text leave the flow for the assistant.
	Escape bool `yaml:"escape,omitempty"`

	// Terminal states render their prompt and return to general inquiry.
	Terminal bool  `yaml:"terminal,omitempty"`
	Lead     *Lead `yaml:"lead,omitempty"`
}

// Prompt is what a state sends on entry.
type Prompt struct {
	Kind         string `yaml:"kind"`
	Header       Text   `yaml:"header,omitempty"`
	Body         Text   `yaml:"body"`
	Footer       Text   `yaml:"footer,omitempty"`
	Label        Text   `yaml:"label,omitempty"`
	SectionTitle Text   `yaml:"section_title,omitempty"`
}

// Option is a selectable button or list row.
type Option struct {
	ID          string `yaml:"id"`
	Title       Text   `yaml:"title"`
	Description Text   `yaml:"description,omitempty"`
	URL         string `yaml:"url,omitempty"`
	Value       string `yaml:"value,omitempty"`
	Next        string `yaml:"next,omitempty"`
}

// OptionSet chooses the options of a state from a previously collected
// field.
type OptionSet struct {
	Field   string              `yaml:"field"`
	Sets    map[string][]Option `yaml:"sets"`
	Default []Option            `yaml:"default"`
}

// Branch picks the next state when Field equals Equals (case-insensitive).
type Branch struct {
	Field  string `yaml:"field"`
	Equals string `yaml:"equals"`
	Next   string `yaml:"next"`
}

// Lead is the notification sent when a terminal state is reached. Lines
// whose placeholders are all missing are dropped.
type Lead struct {
	Subject string   `yaml:"subject"`
	Lines   []string `yaml:"lines"`
}

// Default returns the embedded policy.
func Default() (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(defaultYAML, &p); err != nil {
		return nil, fmt.Errorf("parse embedded policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load returns the embedded policy overridden by the YAML file at path.
// An empty path returns the default.
func Load(path string) (*Policy, error) {
	p, err := Default()
	if err != nil || path == "" {
		return p, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// StateNames lists the flow states in sorted order.
func (p *Policy) StateNames() []string {
	names := make([]string, 0, len(p.Flow.States))
	for name := range p.Flow.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every state reference resolves.
func (p *Policy) Validate() error {
	if p.DefaultLanguage == "" {
		p.DefaultLanguage = LangArabic
	}
	if p.Flow.MaxFailures <= 0 {
		p.Flow.MaxFailures = 2
	}
	if p.Flow.Start == "" {
		p.Flow.Start = StateInitial
	}
	if _, ok := p.Flow.States[p.Flow.Start]; !ok {
		return fmt.Errorf("flow start state %q not defined", p.Flow.Start)
	}

	var errs []error
	check := func(from, to string) {
		if to == "" || to == StateGeneralInquiry {
			return
		}
		if _, ok := p.Flow.States[to]; !ok {
			errs = append(errs, fmt.Errorf("state %s: unknown next state %q", from, to))
		}
	}
	for id, target := range p.Flow.EntryPoints {
		check("entry_points["+id+"]", target)
	}
	for name, st := range p.Flow.States {
		if st == nil {
			errs = append(errs, fmt.Errorf("state %s: empty definition", name))
			continue
		}
		check(name, st.Next)
		for _, b := range st.Branches {
			check(name, b.Next)
		}
		for _, o := range st.allOptions() {
			if o.ID == "" {
				errs = append(errs, fmt.Errorf("state %s: option without id", name))
			}
			check(name, o.Next)
		}
		if !st.Terminal && !st.Input && len(st.allOptions()) == 0 {
			errs = append(errs, fmt.Errorf("state %s: needs options, input or terminal", name))
		}
	}
	return errors.Join(errs...)
}

func (s *State) allOptions() []Option {
	out := append([]Option(nil), s.Options...)
	if s.OptionsBy != nil {
		for _, set := range s.OptionsBy.Sets {
			out = append(out, set...)
		}
		out = append(out, s.OptionsBy.Default...)
	}
	return out
}

// OptionsFor returns the options offered given the collected fields.
func (s *State) OptionsFor(fields map[string]string) []Option {
	if s.OptionsBy == nil {
		return s.Options
	}
	key := fields[s.OptionsBy.Field]
	for k, set := range s.OptionsBy.Sets {
		if strings.EqualFold(k, key) {
			return set
		}
	}
	return s.OptionsBy.Default
}

// IsGreeting reports whether text is a greeting: an exact match, or a
// prefix match for greetings longer than two characters.
func (p *Policy) IsGreeting(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, g := range p.Greetings {
		g = strings.ToLower(g)
		if t == g {
			return true
		}
		if len([]rune(g)) > 2 && strings.HasPrefix(t, g) {
			return true
		}
	}
	return false
}

// Fill replaces {key} placeholders with values.
func Fill(s string, values map[string]string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
