// Package scheduler books appointments on a calendar from natural language
// requests. Dates and times are read and confirmed in the display timezone.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/genai"
	"github.com/Bossianity/Project-WAPi/internal/googleapi"
)

// ErrUnavailable is returned when no calendar or model is configured.
var ErrUnavailable = errors.New("appointment scheduling unavailable")

// Defaults used when no option overrides them.
const (
	DefaultCalendarID  = "primary"
	DefaultTimezone    = "Asia/Dubai"
	DefaultDuration    = 60 * time.Minute
	DefaultServiceType = "General Consultation"
)

// Replies sent back to the user.
const (
	TextUnavailable = "Sorry, appointment scheduling is currently unavailable. Please contact us directly to book your appointment."
	TextNeedDetails = "I'd be happy to help you schedule an appointment!\n\n" +
		"Could you please provide more details? For example:\n" +
		"- What date would you prefer?\n" +
		"- What time works best for you?\n" +
		"- What type of service do you need?"
	TextNeedDate    = "I understand you want to schedule an appointment, but I need a specific date. Could you please tell me which date you prefer?"
	TextPast        = "I can't schedule appointments in the past. Could you please choose a future date and time?"
	TextBadFormat   = "There was an issue with the date or time format. Please provide it like 'YYYY-MM-DD' for date and 'HH:MM' for time."
	TextCreateError = "I encountered an issue while creating your appointment. Please try again or contact us directly."
	TextCheckError  = "Sorry, I had trouble processing your appointment request. Could you please try again with a specific date and time?"
)

const (
	dateLayout    = "2006-01-02"
	timeLayout    = "15:04"
	longDate      = "Monday, January 02, 2006"
	shortDateTime = "Monday, January 02 at 03:04 PM MST"
	clockLayout   = "03:04 PM MST"
)

// Calendar is the booking backend.
type Calendar interface {
	Busy(ctx context.Context, calendarID string, from, to time.Time) (bool, error)
	Insert(ctx context.Context, calendarID string, ev googleapi.Event) (string, error)
}

// Chatter sends a prompt to the language model.
type Chatter interface {
	Chat(ctx context.Context, messages []genai.Message) (string, error)
}

// Opts holds configuration for the scheduler.
type Opts struct {
	CalendarID      string
	Location        *time.Location
	StorageLocation *time.Location
	Now             func() time.Time
}

// Option configures Opts.
type Option func(*Opts)

// WithCalendarID sets the calendar events are written to.
func WithCalendarID(id string) Option {
	return func(o *Opts) {
		if id != "" {
			o.CalendarID = id
		}
	}
}

// WithLocation sets the display timezone requests are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithStorageLocation sets the timezone events are written in. It defaults
// to the display timezone.
func WithStorageLocation(loc *time.Location) Option {
	return func(o *Opts) { o.StorageLocation = loc }
}

// WithClock overrides the current time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Scheduler turns a booking request into a calendar event.
type Scheduler struct {
	cal  Calendar
	chat Chatter
	opts Opts
}

// New creates a scheduler. A nil calendar or chat makes it unavailable.
func New(cal Calendar, chat Chatter, opts ...Option) *Scheduler {
	o := Opts{CalendarID: DefaultCalendarID, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Location == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		o.Location = loc
	}
	if o.StorageLocation == nil {
		o.StorageLocation = o.Location
	}
	return &Scheduler{cal: cal, chat: chat, opts: o}
}

// Available reports whether bookings can be made.
func (s *Scheduler) Available() bool {
	return s.ready() == nil
}

func (s *Scheduler) ready() error {
	if s == nil || s.cal == nil || s.chat == nil {
		return ErrUnavailable
	}
	return nil
}

var (
	schedulingKeywords = []string{
		"appointment", "schedule", "book", "booking", "meeting", "consultation",
		"reserve", "reservation", "visit", "session", "call", "meet",
		"موعد", "حجز", "زيارة",
	}
	timeIndicators = []string{
		"today", "tomorrow", "next week", "monday", "tuesday", "wednesday", "thursday",
		"friday", "saturday", "sunday", "am", "pm", "morning", "afternoon", "evening",
		"at", "on", "o'clock", ":", "time",
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}[/-]\d{1,2}`),
		regexp.MustCompile(`\b\d{1,2}(st|nd|rd|th)\b`),
	}
)

// DetectIntent reports whether text asks to book something: a scheduling
// keyword, or a time indicator together with a date.
func DetectIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range schedulingKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	hasTime := false
	for _, t := range timeIndicators {
		if strings.Contains(lower, t) {
			hasTime = true
			break
		}
	}
	if !hasTime {
		return false
	}
	for _, p := range datePatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// extraction is the model's reading of a booking request.
type extraction struct {
	HasDatetime     bool    `json:"has_datetime"`
	Date            *string `json:"date"`
	Time            *string `json:"time"`
	DurationMinutes int     `json:"duration_minutes"`
	ServiceType     string  `json:"service_type"`
	Confidence      float64 `json:"confidence"`
}

// Handle answers one booking request from userID.
func (s *Scheduler) Handle(ctx context.Context, userID, text string) string {
	if err := s.ready(); err != nil {
		slog.Debug("Scheduler.Handle: not configured", "userID", userID, "error", err)
		return TextUnavailable
	}
	ex := s.extract(ctx, text)
	if !ex.HasDatetime {
		return TextNeedDetails
	}
	service := strings.TrimSpace(ex.ServiceType)
	if service == "" {
		service = DefaultServiceType
	}
	duration := DefaultDuration
	if ex.DurationMinutes > 0 {
		duration = time.Duration(ex.DurationMinutes) * time.Minute
	}
	loc := s.opts.Location

	if ex.Date == nil || *ex.Date == "" {
		return TextNeedDate
	}
	day, err := time.ParseInLocation(dateLayout, *ex.Date, loc)
	if err != nil {
		slog.Warn("Scheduler.Handle: bad date", "userID", userID, "date", *ex.Date, "error", err)
		return TextBadFormat
	}
	if ex.Time == nil || *ex.Time == "" {
		return fmt.Sprintf("Great! I can help you schedule a %s on %s (%s time).\n\nWhat time would work best for you? For example:\n- 9:00 AM\n- 2:00 PM\n- 4:30 PM",
			service, day.Format(longDate), loc)
	}
	clock, err := time.Parse(timeLayout, *ex.Time)
	if err != nil {
		slog.Warn("Scheduler.Handle: bad time", "userID", userID, "time", *ex.Time, "error", err)
		return TextBadFormat
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	end := start.Add(duration)
	if start.Before(s.opts.Now().In(loc)) {
		return TextPast
	}

	storeStart, storeEnd := start.In(s.opts.StorageLocation), end.In(s.opts.StorageLocation)
	busy, err := s.cal.Busy(ctx, s.opts.CalendarID, storeStart, storeEnd)
	if err != nil {
		slog.Error("Scheduler.Handle: availability check failed", "userID", userID, "error", err)
		return TextCheckError
	}
	if busy {
		return fmt.Sprintf("Unfortunately, %s is not available.\n\nCould you please suggest another time? I'd be happy to help you find an alternative slot.",
			start.Format(shortDateTime))
	}

	link, err := s.cal.Insert(ctx, s.opts.CalendarID, googleapi.Event{
		Summary: service + " - WhatsApp Booking",
		Description: fmt.Sprintf("Appointment scheduled via WhatsApp.\nClient: %s\nService: %s\nDuration: %d minutes\nIntended time (%s): %s",
			userID, service, int(duration.Minutes()), loc, start.Format("2006-01-02 15:04 MST")),
		Start:    storeStart,
		End:      storeEnd,
		TimeZone: s.opts.StorageLocation.String(),
	})
	if err != nil || link == "" {
		slog.Error("Scheduler.Handle: event creation failed", "userID", userID, "error", err)
		return TextCreateError
	}
	slog.Info("Scheduler.Handle: appointment booked", "userID", userID, "start", start, "service", service)
	return fmt.Sprintf("Perfect! Your appointment has been scheduled:\n\nDate: %s\nTime: %s (%s)\nDuration: %d minutes\nService: %s\n\nYou'll receive a reminder. Looking forward to seeing you!",
		start.Format(longDate), start.Format(clockLayout), loc, int(duration.Minutes()), service)
}

func (s *Scheduler) extract(ctx context.Context, text string) extraction {
	now := s.opts.Now().In(s.opts.Location)
	prompt := fmt.Sprintf(extractionPrompt, text, now.Format("2006-01-02 15:04 (Monday)"), s.opts.Location)
	raw, err := s.chat.Chat(ctx, []genai.Message{{Role: genai.RoleUser, Content: prompt}})
	if err != nil {
		slog.Warn("Scheduler.extract: model call failed", "error", err)
		return extraction{}
	}
	var ex extraction
	if err := json.Unmarshal([]byte(jsonBlock(raw)), &ex); err != nil {
		slog.Warn("Scheduler.extract: output not JSON", "error", err)
		return extraction{}
	}
	return ex
}

// jsonBlock returns the content of the first code fence, or raw trimmed.
func jsonBlock(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "```"); i >= 0 {
		rest := strings.TrimPrefix(raw[i+3:], "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		return strings.TrimSpace(rest)
	}
	return raw
}

const extractionPrompt = `Extract date and time information from this message: %q

Current date and time: %s in the %s timezone.

Respond with ONLY a JSON object in this exact format:
{
  "has_datetime": true or false,
  "date": "YYYY-MM-DD" or null,
  "time": "HH:MM" or null,
  "duration_minutes": number (default 60),
  "service_type": "extracted service name" or "General Consultation",
  "confidence": 0.0 to 1.0
}

Rules:
- "today" and "tomorrow" are relative to the current date above.
- A weekday without a date means its next occurrence.
- If no time is given, time is null.
- All dates and times are local to the timezone above.`
