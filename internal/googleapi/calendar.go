package googleapi

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
)

// Event is a calendar booking to create.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

// Calendar checks availability and inserts events.
type Calendar struct {
	srv *calendar.Service
}

// NewCalendar creates the Calendar adapter.
func NewCalendar(ctx context.Context, opts ...ClientOption) (*Calendar, error) {
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Calendar{srv: srv}, nil
}

// Busy reports whether calendarID has any busy period overlapping [from, to).
func (c *Calendar) Busy(ctx context.Context, calendarID string, from, to time.Time) (bool, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: from.Location().String(),
		Items:    []*calendar.FreeBusyRequestItem{{Id: calendarID}},
	}
	resp, err := c.srv.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("query free/busy: %w", err)
	}
	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return false, nil
	}
	if len(cal.Errors) > 0 {
		return false, fmt.Errorf("free/busy for %s: %s", calendarID, cal.Errors[0].Reason)
	}
	return len(cal.Busy) > 0, nil
}

// Insert creates the event with an email reminder a day ahead and a popup
// ten minutes ahead, returning its HTML link.
func (c *Calendar) Insert(ctx context.Context, calendarID string, ev Event) (string, error) {
	body := &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone},
		End:         &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.TimeZone},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	created, err := c.srv.Events.Insert(calendarID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.HtmlLink, nil
}
