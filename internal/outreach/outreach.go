// Package outreach runs bulk WhatsApp campaigns from a Google Sheet: a
// template sheet provides the message and a contacts sheet the recipients,
// whose status cells are updated as messages go out.
package outreach

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bossianity/Project-WAPi/internal/googleapi"
	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

// Defaults used when no option overrides them.
const (
	DefaultTemplateSheet = "MessageTemplate"
	DefaultContactsSheet = "Sheet1"
	DefaultDelay         = 5 * time.Second
	DefaultTemplate      = "Hi {ClientName}, this is a default message about {ServiceName}."
	DefaultClientName    = "Valued Customer"
	DefaultServiceName   = "our services"
	TimestampLayout      = "2006-01-02 15:04:05"
)

// Column headers of the contacts sheet.
const (
	HeaderPhone         = "PhoneNumber"
	HeaderClientName    = "ClientName"
	HeaderStatus        = "MessageStatus"
	HeaderLastContacted = "LastContactedDate"
	HeaderService       = "InterestedService"
)

// RequiredHeaders must all be present in the contacts sheet.
var RequiredHeaders = []string{HeaderPhone, HeaderClientName, HeaderStatus}

// Sheets reads and writes spreadsheet cells.
type Sheets interface {
	Values(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
	UpdateCell(ctx context.Context, spreadsheetID, rng, value string) error
}

// Sender delivers campaign messages.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to string, msg models.ButtonMessage) error
}

// Opts holds configuration for the runner.
type Opts struct {
	TemplateSheet string
	ContactsSheet string
	Delay         time.Duration
	Location      *time.Location
	Now           func() time.Time
}

// Option configures Opts.
type Option func(*Opts)

// WithTemplateSheet sets the sheet holding the message template.
func WithTemplateSheet(name string) Option {
	return func(o *Opts) {
		if name != "" {
			o.TemplateSheet = name
		}
	}
}

// WithContactsSheet sets the sheet holding the contacts.
func WithContactsSheet(name string) Option {
	return func(o *Opts) {
		if name != "" {
			o.ContactsSheet = name
		}
	}
}

// WithDelay sets the pause between two contacts.
func WithDelay(d time.Duration) Option {
	return func(o *Opts) { o.Delay = d }
}

// WithLocation sets the timezone of the LastContactedDate stamp.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithClock overrides the current time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Summary counts the outcome of one campaign.
type Summary struct {
	CampaignID  string
	SheetID     string
	Sent        int
	Failed      int
	Skipped     int
	WriteErrors int
	Aborted     string
}

// Message renders the summary sent to the admin.
func (s Summary) Message() string {
	if s.Aborted != "" {
		return s.Aborted
	}
	return fmt.Sprintf("Outreach campaign from Sheet ID %s completed.\nSuccessfully Sent: %d\nFailed to Send: %d\nSkipped (already processed or no phone number): %d",
		s.SheetID, s.Sent, s.Failed, s.Skipped)
}

// Runner executes campaigns. Campaigns run one at a time per call.
type Runner struct {
	sheets Sheets
	sender Sender
	opts   Opts
}

// NewRunner creates a runner. A nil sheets client makes every campaign
// abort with a notice to the admin.
func NewRunner(sheets Sheets, sender Sender, opts ...Option) *Runner {
	o := Opts{
		TemplateSheet: DefaultTemplateSheet,
		ContactsSheet: DefaultContactsSheet,
		Delay:         DefaultDelay,
		Location:      time.UTC,
		Now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Runner{sheets: sheets, sender: sender, opts: o}
}

// Run sends the campaign in sheetID and reports the summary to adminID.
func (r *Runner) Run(ctx context.Context, sheetID, adminID string) Summary {
	sum := Summary{CampaignID: uuid.NewString(), SheetID: sheetID}
	log := slog.With("campaignID", sum.CampaignID, "sheetID", sheetID)
	log.Info("Runner.Run: campaign started", "admin", adminID)

	defer func() {
		if adminID == "" {
			return
		}
		to := util.NormalizeJID(adminID)
		if to == "" {
			to = adminID
		}
		if err := r.sender.SendText(ctx, to, sum.Message()); err != nil {
			log.Error("Runner.Run: failed to notify admin", "admin", adminID, "error", err)
		}
	}()

	if r.sheets == nil {
		sum.Aborted = "Error: Could not connect to Google Sheets service."
		log.Error("Runner.Run: no sheets client")
		return sum
	}

	tmpl := r.loadTemplate(ctx, sheetID)

	rows, err := r.sheets.Values(ctx, sheetID, googleapi.QuoteRange(r.opts.ContactsSheet, ""))
	if err != nil {
		log.Error("Runner.Run: failed to read contacts", "sheet", r.opts.ContactsSheet, "error", err)
		sum.Aborted = fmt.Sprintf("Failed to read contact data from sheet '%s'. Please check the sheet name and format.", r.opts.ContactsSheet)
		return sum
	}
	contacts, columns, err := ParseContacts(rows)
	if err != nil {
		log.Error("Runner.Run: invalid contacts sheet", "sheet", r.opts.ContactsSheet, "error", err)
		sum.Aborted = fmt.Sprintf("Failed to read contact data from sheet '%s': %v.", r.opts.ContactsSheet, err)
		return sum
	}

	for i, c := range contacts {
		if ctx.Err() != nil {
			log.Warn("Runner.Run: cancelled", "remaining", len(contacts)-i)
			break
		}
		to := util.NormalizeJID(c.PhoneNumber)
		if to == "" || models.IsTerminalStatus(c.MessageStatus) {
			sum.Skipped++
			continue
		}

		sendErr := r.send(ctx, to, tmpl, placeholders(c))
		status := models.ContactStatusSent
		if sendErr != nil {
			log.Warn("Runner.Run: send failed", "row", c.Row, "to", to, "error", sendErr)
			status = models.ContactStatusFailed
			sum.Failed++
		} else {
			sum.Sent++
		}

		if err := r.writeCell(ctx, sheetID, columns[HeaderStatus], c.Row, status); err != nil {
			log.Error("Runner.Run: status write failed", "row", c.Row, "error", err)
			sum.WriteErrors++
		}
		if col, ok := columns[HeaderLastContacted]; ok {
			stamp := r.opts.Now().In(r.opts.Location).Format(TimestampLayout)
			if err := r.writeCell(ctx, sheetID, col, c.Row, stamp); err != nil {
				log.Error("Runner.Run: timestamp write failed", "row", c.Row, "error", err)
				sum.WriteErrors++
			}
		}

		if i < len(contacts)-1 {
			if err := util.SleepContext(ctx, r.opts.Delay); err != nil {
				log.Warn("Runner.Run: cancelled during delay", "error", err)
				break
			}
		}
	}

	log.Info("Runner.Run: campaign finished", "sent", sum.Sent, "failed", sum.Failed, "skipped", sum.Skipped, "writeErrors", sum.WriteErrors)
	return sum
}

func (r *Runner) send(ctx context.Context, to string, tmpl models.OutreachTemplate, values map[string]string) error {
	if tmpl.Interactive && len(tmpl.Buttons) > 0 {
		return r.sender.SendButtons(ctx, to, models.ButtonMessage{
			Header:  fill(tmpl.Header, values),
			Body:    fill(tmpl.Body, values),
			Footer:  fill(tmpl.Footer, values),
			Buttons: tmpl.Buttons,
		})
	}
	body := tmpl.Body
	if tmpl.Interactive || body == "" {
		body = DefaultTemplate
	}
	return r.sender.SendText(ctx, to, fill(body, values))
}

func (r *Runner) writeCell(ctx context.Context, sheetID string, col, row int, value string) error {
	cell := googleapi.ColumnLetter(col) + strconv.Itoa(row)
	return r.sheets.UpdateCell(ctx, sheetID, googleapi.QuoteRange(r.opts.ContactsSheet, cell), value)
}

func (r *Runner) loadTemplate(ctx context.Context, sheetID string) models.OutreachTemplate {
	values, err := r.sheets.Values(ctx, sheetID, googleapi.QuoteRange(r.opts.TemplateSheet, "A1:D3"))
	if err != nil {
		slog.Warn("Runner.loadTemplate: using default message", "sheet", r.opts.TemplateSheet, "error", err)
		return models.OutreachTemplate{Body: DefaultTemplate}
	}
	return ParseTemplate(values)
}

// ParseTemplate reads the A1:D3 template block. "interactive" in A1 marks a
// button message: header, body and footer in B1:B3 and up to three buttons
// as title/id pairs in C1:D3. Otherwise A1 is the text template.
func ParseTemplate(values [][]string) models.OutreachTemplate {
	cell := func(r, c int) string {
		if r < len(values) && c < len(values[r]) {
			return strings.TrimSpace(values[r][c])
		}
		return ""
	}
	marker := cell(0, 0)
	if !strings.EqualFold(marker, "interactive") && !strings.EqualFold(marker, "interactive_message") {
		if marker == "" {
			marker = DefaultTemplate
		}
		return models.OutreachTemplate{Body: marker}
	}
	t := models.OutreachTemplate{
		Interactive: true,
		Header:      cell(0, 1),
		Body:        cell(1, 1),
		Footer:      cell(2, 1),
	}
	for row := 0; row < 3 && len(t.Buttons) < models.MaxButtons; row++ {
		title, id := cell(row, 2), cell(row, 3)
		if title == "" || id == "" {
			continue
		}
		t.Buttons = append(t.Buttons, models.Button{Type: models.ButtonQuickReply, ID: id, Title: title})
	}
	return t
}

// ParseContacts maps the contacts sheet into contacts and a header to
// 0-based column index map. Row numbers are 1-based sheet rows.
func ParseContacts(rows [][]string) ([]models.Contact, map[string]int, error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet is empty")
	}
	columns := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if _, dup := columns[h]; h != "" && !dup {
			columns[h] = i
		}
	}
	var missing []string
	for _, h := range RequiredHeaders {
		if _, ok := columns[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("missing required headers %s", strings.Join(missing, ", "))
	}

	contacts := make([]models.Contact, 0, len(rows)-1)
	for i, row := range rows[1:] {
		get := func(h string) string {
			if idx, ok := columns[h]; ok && idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}
		c := models.Contact{
			Row:               i + 2,
			PhoneNumber:       get(HeaderPhone),
			ClientName:        get(HeaderClientName),
			MessageStatus:     get(HeaderStatus),
			LastContactedDate: get(HeaderLastContacted),
			Extra:             make(map[string]string, len(columns)),
		}
		for h := range columns {
			c.Extra[h] = get(h)
		}
		contacts = append(contacts, c)
	}
	return contacts, columns, nil
}

func placeholders(c models.Contact) map[string]string {
	v := c.Placeholders()
	if v[HeaderClientName] == "" {
		v[HeaderClientName] = DefaultClientName
	}
	v["ServiceName"] = c.Extra[HeaderService]
	if v["ServiceName"] == "" {
		v["ServiceName"] = DefaultServiceName
	}
	return v
}

func fill(s string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
