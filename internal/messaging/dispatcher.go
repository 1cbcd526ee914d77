package messaging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/assistant"
	"github.com/Bossianity/Project-WAPi/internal/flow"
	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/outreach"
	"github.com/Bossianity/Project-WAPi/internal/pause"
	"github.com/Bossianity/Project-WAPi/internal/policy"
	"github.com/Bossianity/Project-WAPi/internal/recovery"
	"github.com/Bossianity/Project-WAPi/internal/scheduler"
	"github.com/Bossianity/Project-WAPi/internal/store"
	"github.com/Bossianity/Project-WAPi/internal/util"
	"github.com/Bossianity/Project-WAPi/internal/worker"
)

const (
	// DefaultStaleAfter drops inbound messages older than this.
	DefaultStaleAfter = 90 * time.Second
	// DefaultHistoryEntries is the persisted history bound (10 turns).
	DefaultHistoryEntries = 20
)

// Responder answers free-form questions.
type Responder interface {
	Respond(ctx context.Context, req assistant.Request) models.Result
}

// Appointments books calendar slots from free text.
type Appointments interface {
	Handle(ctx context.Context, userID, text string) string
}

// Campaigns runs outreach campaigns.
type Campaigns interface {
	Run(ctx context.Context, sheetID, adminID string) outreach.Summary
}

// Submitter queues background work.
type Submitter interface {
	Submit(name string, fn worker.Task) error
}

// Transcriber turns speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Fetcher downloads attachments.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// LeadNotifier delivers leads captured by the guided flow.
type LeadNotifier interface {
	Send(ctx context.Context, subject, body string) error
}

// DispatcherOpts holds the optional collaborators and limits of a Dispatcher.
type DispatcherOpts struct {
	StaleAfter     time.Duration
	HistoryEntries int
	// Admins restricts admin commands to these senders. Empty means anyone.
	Admins         []string
	DefaultSheetID string

	Dedup        store.DedupRepo
	Engine       *flow.Engine
	Appointments Appointments
	Campaigns    Campaigns
	Pool         Submitter
	Transcriber  Transcriber
	Fetcher      Fetcher
	Leads        LeadNotifier

	Now func() time.Time
}

// DispatcherOption configures DispatcherOpts.
type DispatcherOption func(*DispatcherOpts)

// WithStaleAfter sets the staleness threshold.
func WithStaleAfter(d time.Duration) DispatcherOption {
	return func(o *DispatcherOpts) { o.StaleAfter = d }
}

// WithHistoryEntries bounds the persisted history.
func WithHistoryEntries(n int) DispatcherOption {
	return func(o *DispatcherOpts) { o.HistoryEntries = n }
}

// WithAdmins sets the admin allow-list.
func WithAdmins(ids ...string) DispatcherOption {
	return func(o *DispatcherOpts) { o.Admins = append(o.Admins, ids...) }
}

// WithDefaultSheet sets the outreach sheet used when the command names none.
func WithDefaultSheet(id string) DispatcherOption {
	return func(o *DispatcherOpts) { o.DefaultSheetID = id }
}

// WithDedup drops messages whose ID was already seen.
func WithDedup(d store.DedupRepo) DispatcherOption {
	return func(o *DispatcherOpts) { o.Dedup = d }
}

// WithFlow enables the guided button flow.
func WithFlow(e *flow.Engine) DispatcherOption {
	return func(o *DispatcherOpts) { o.Engine = e }
}

// WithAppointments routes booking requests to a.
func WithAppointments(a Appointments) DispatcherOption {
	return func(o *DispatcherOpts) { o.Appointments = a }
}

// WithCampaigns enables the outreach command. Campaigns run on pool.
func WithCampaigns(c Campaigns, pool Submitter) DispatcherOption {
	return func(o *DispatcherOpts) { o.Campaigns, o.Pool = c, pool }
}

// WithPool sets the pool used for lead notifications.
func WithPool(pool Submitter) DispatcherOption {
	return func(o *DispatcherOpts) { o.Pool = pool }
}

// WithTranscription enables voice notes. fetcher may be nil when the
// provider delivers media bytes itself.
func WithTranscription(t Transcriber, fetcher Fetcher) DispatcherOption {
	return func(o *DispatcherOpts) { o.Transcriber, o.Fetcher = t, fetcher }
}

// WithLeads sets where completed flow leads are sent.
func WithLeads(n LeadNotifier) DispatcherOption {
	return func(o *DispatcherOpts) { o.Leads = n }
}

// WithDispatcherClock overrides time.Now.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(o *DispatcherOpts) { o.Now = now }
}

// BatchReport counts what happened to one webhook batch.
type BatchReport struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Dispatcher runs the per-message pipeline: filtering, body extraction,
// admin commands, pause gating, routing, sending and history persistence.
type Dispatcher struct {
	svc       Service
	store     store.ConversationStore
	pauses    pause.Registry
	responder Responder
	policy    *policy.Policy
	admins    map[string]bool
	opts      DispatcherOpts
}

// NewDispatcher wires the mandatory collaborators; everything else comes
// from options.
func NewDispatcher(svc Service, st store.ConversationStore, pauses pause.Registry, responder Responder, p *policy.Policy, opts ...DispatcherOption) *Dispatcher {
	o := DispatcherOpts{
		StaleAfter:     DefaultStaleAfter,
		HistoryEntries: DefaultHistoryEntries,
		Now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	admins := make(map[string]bool, len(o.Admins))
	for _, a := range o.Admins {
		if jid := util.NormalizeJID(a); jid != "" {
			admins[jid] = true
		}
	}
	if len(admins) == 0 {
		slog.Warn("NewDispatcher: no admin allow-list configured, admin commands are accepted from any sender")
	}
	return &Dispatcher{
		svc:       svc,
		store:     st,
		pauses:    pauses,
		responder: responder,
		policy:    p,
		admins:    admins,
		opts:      o,
	}
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
)

// HandleBatch processes messages one after another. A failing or panicking
// message is logged and counted; it never stops the batch.
func (d *Dispatcher) HandleBatch(ctx context.Context, msgs []models.InboundMessage) BatchReport {
	var report BatchReport
	for _, msg := range msgs {
		var res outcome
		err := recovery.Run("Dispatcher.handle", func() error {
			var err error
			res, err = d.handle(ctx, msg)
			return err
		})
		switch {
		case err != nil:
			slog.Error("Dispatcher.HandleBatch: message failed", "id", msg.ID, "from", msg.From, "error", err)
			report.Failed++
		case res == outcomeSkipped:
			report.Skipped++
		default:
			report.Processed++
		}
	}
	slog.Debug("Dispatcher.HandleBatch: batch done", "processed", report.Processed, "skipped", report.Skipped, "failed", report.Failed)
	return report
}

// Run feeds messages pushed by the provider (Twilio, whatsmeow) into the
// pipeline until ctx is done or the channel closes.
func (d *Dispatcher) Run(ctx context.Context) {
	in := d.svc.Receive()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				slog.Debug("Dispatcher.Run: inbound channel closed")
				return
			}
			d.HandleBatch(ctx, []models.InboundMessage{msg})
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg models.InboundMessage) (outcome, error) {
	if msg.FromMe {
		slog.Debug("Dispatcher.handle: skipping own message", "id", msg.ID)
		return outcomeSkipped, nil
	}
	if !msg.Timestamp.IsZero() {
		if age := d.opts.Now().Sub(msg.Timestamp); age > d.opts.StaleAfter {
			slog.Info("Dispatcher.handle: dropping stale message", "id", msg.ID, "from", msg.From, "age", age.Round(time.Second))
			return outcomeSkipped, nil
		}
	}
	sender := util.NormalizeJID(msg.From)
	if sender == "" {
		slog.Warn("Dispatcher.handle: message without usable sender", "id", msg.ID, "from", msg.From)
		return outcomeSkipped, nil
	}
	if d.opts.Dedup != nil && msg.ID != "" {
		fresh, err := d.opts.Dedup.RecordInbound(ctx, msg.ID, sender)
		if err != nil {
			slog.Warn("Dispatcher.handle: dedup check failed, processing anyway", "id", msg.ID, "error", err)
		} else if !fresh {
			slog.Info("Dispatcher.handle: duplicate delivery ignored", "id", msg.ID, "from", sender)
			return outcomeSkipped, nil
		}
	}

	body, spoken := d.extractBody(ctx, msg)
	if strings.TrimSpace(body) == "" {
		slog.Debug("Dispatcher.handle: empty body", "id", msg.ID, "type", msg.Type)
		return outcomeSkipped, nil
	}

	if d.handleAdmin(ctx, sender, body) {
		return outcomeProcessed, nil
	}

	ok, err := d.pauses.IsActionable(ctx, sender)
	if err != nil {
		slog.Warn("Dispatcher.handle: pause lookup failed, answering anyway", "from", sender, "error", err)
		ok = true
	}
	if !ok {
		slog.Info("Dispatcher.handle: conversation paused, ignoring message", "from", sender)
		return outcomeSkipped, nil
	}

	d.converse(ctx, msg, sender, body, spoken)
	if d.opts.Dedup != nil && msg.ID != "" {
		if err := d.opts.Dedup.MarkProcessed(ctx, msg.ID); err != nil {
			slog.Debug("Dispatcher.handle: mark processed failed", "id", msg.ID, "error", err)
		}
	}
	return outcomeProcessed, nil
}

// turn is what one message changes in the conversation record.
type turn struct {
	reply    string
	state    models.StateLabel
	failures int
	fields   map[string]string
}

// converse routes the message, sends the answer and appends the turn to the
// user's history. The per-user lock is held for the whole exchange so two
// quick messages from one user are answered and recorded in order. The
// language is only re-detected from spoken bodies.
func (d *Dispatcher) converse(ctx context.Context, msg models.InboundMessage, sender, body string, spoken bool) {
	userID := util.SanitizeUserID(sender)
	unlock := store.LockUser(userID)
	defer unlock()

	rec, err := d.store.Get(ctx, userID)
	if err != nil {
		slog.Error("Dispatcher.converse: failed to load conversation, continuing without history", "userID", userID, "error", err)
	}
	if rec == nil {
		rec = models.NewConversationRecord(userID)
	}
	if spoken {
		rec.Language = flow.DetectLanguage(body)
	} else if rec.Language == "" {
		rec.Language = d.policy.DefaultLanguage
	}

	t := d.route(ctx, rec, msg, sender, body)

	_, err = store.Update(ctx, d.store, userID, func(r *models.ConversationRecord) error {
		r.AppendTurn(body, t.reply, d.opts.HistoryEntries)
		r.State = t.state
		r.Failures = t.failures
		r.Fields = t.fields
		r.Language = rec.Language
		return nil
	})
	if err != nil {
		slog.Error("Dispatcher.converse: reply sent but conversation not saved", "userID", userID, "error", err)
	}
}

func (d *Dispatcher) route(ctx context.Context, rec *models.ConversationRecord, msg models.InboundMessage, sender, body string) turn {
	in := flow.InputFrom(msg)
	in.Sender = sender
	if !msg.IsReply() {
		in.Text = body
	}

	if e := d.opts.Engine; e != nil {
		if e.InFlow(rec.CurrentState()) {
			out := e.Handle(rec, in)
			if out.Handled {
				return d.applyFlow(ctx, rec, sender, out)
			}
			rec.State, rec.Failures, rec.Fields = models.StateGeneralInquiry, 0, out.Fields
		} else if target, ok := e.Entry(in); ok {
			return d.applyFlow(ctx, rec, sender, e.Start(rec, target, in))
		}
	}

	if d.opts.Appointments != nil && d.wantsAppointment(body) {
		reply := d.opts.Appointments.Handle(ctx, rec.UserID, body)
		d.sendText(ctx, sender, reply)
		return turn{reply: reply, state: rec.CurrentState(), fields: rec.Fields}
	}

	res := d.responder.Respond(ctx, assistant.Request{
		UserID:   rec.UserID,
		Text:     body,
		State:    rec.CurrentState(),
		History:  rec.History,
		Language: rec.Language,
	})
	reply := d.sendResult(ctx, sender, res, rec.Language)
	if res.Unanswered {
		d.notifyUnanswered(ctx, sender, body)
	}
	next := rec.CurrentState()
	if res.Kind == models.ResultTransition && res.NextState != "" {
		next = res.NextState
	}
	return turn{reply: reply, state: next, fields: rec.Fields}
}

func (d *Dispatcher) applyFlow(ctx context.Context, rec *models.ConversationRecord, sender string, out flow.Outcome) turn {
	d.sendReplies(ctx, sender, out.Replies)
	if out.Lead != nil {
		d.sendLead(ctx, rec.UserID, *out.Lead)
	}
	return turn{
		reply:    flow.FlattenAll(out.Replies),
		state:    out.Next,
		failures: out.Failures,
		fields:   out.Fields,
	}
}

func (d *Dispatcher) wantsAppointment(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range d.policy.SchedulingKeywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return scheduler.DetectIntent(text)
}

func (d *Dispatcher) sendLead(ctx context.Context, userID string, lead flow.Lead) {
	if d.opts.Leads == nil {
		slog.Info("Dispatcher.sendLead: no lead notifier, lead only logged", "userID", userID, "subject", lead.Subject)
		return
	}
	send := func(ctx context.Context) error { return d.opts.Leads.Send(ctx, lead.Subject, lead.Body) }
	if d.opts.Pool != nil {
		if err := d.opts.Pool.Submit("lead-email", send); err == nil {
			return
		}
	}
	if err := send(ctx); err != nil {
		slog.Error("Dispatcher.sendLead: lead notification failed", "userID", userID, "error", err)
	}
}

func (d *Dispatcher) notifyUnanswered(ctx context.Context, sender, question string) {
	if len(d.admins) == 0 {
		slog.Info("Dispatcher.notifyUnanswered: unanswered question", "from", sender, "question", question)
		return
	}
	text := policy.Fill(d.text(d.policy.Texts.UnansweredNotice, policy.LangEnglish), map[string]string{
		"user":     util.PhoneDigits(sender),
		"question": question,
	})
	for admin := range d.admins {
		if err := d.svc.SendText(ctx, admin, text); err != nil {
			slog.Warn("Dispatcher.notifyUnanswered: admin notice failed", "admin", admin, "error", err)
		}
	}
}

func (d *Dispatcher) text(t policy.Text, lang string) string {
	return t.In(lang, d.policy.DefaultLanguage)
}
