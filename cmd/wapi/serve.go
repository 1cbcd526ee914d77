package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Bossianity/Project-WAPi/internal/api"
	"github.com/Bossianity/Project-WAPi/internal/assistant"
	"github.com/Bossianity/Project-WAPi/internal/flow"
	"github.com/Bossianity/Project-WAPi/internal/genai"
	"github.com/Bossianity/Project-WAPi/internal/listings"
	"github.com/Bossianity/Project-WAPi/internal/lockfile"
	"github.com/Bossianity/Project-WAPi/internal/media"
	"github.com/Bossianity/Project-WAPi/internal/messaging"
	"github.com/Bossianity/Project-WAPi/internal/notify"
	"github.com/Bossianity/Project-WAPi/internal/outreach"
	"github.com/Bossianity/Project-WAPi/internal/policy"
	"github.com/Bossianity/Project-WAPi/internal/rag"
	"github.com/Bossianity/Project-WAPi/internal/scheduler"
	"github.com/Bossianity/Project-WAPi/internal/worker"
)

var serveFlags struct {
	port        int
	qrOutput    string
	numericCode bool
	provider    string
	store       string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and message dispatcher",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "HTTP port (overrides $PORT)")
	serveCmd.Flags().StringVar(&serveFlags.qrOutput, "qr-output", "", "Write the whatsmeow login QR code to this file instead of the terminal")
	serveCmd.Flags().BoolVar(&serveFlags.numericCode, "numeric-code", false, "Use numeric pairing code instead of QR for whatsmeow login")
	serveCmd.Flags().StringVar(&serveFlags.provider, "provider", "", "WhatsApp provider: whapi, twilio or whatsmeow (overrides $WHATSAPP_PROVIDER)")
	serveCmd.Flags().StringVar(&serveFlags.store, "store", "", "Conversation store: memory, file, bolt, sqlite, postgres or redis (overrides $WAPI_STORE)")
	RootCmd.AddCommand(serveCmd)
}

func applyServeFlags(cmd *cobra.Command, c *Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Port = serveFlags.port
	}
	if flags.Changed("qr-output") {
		c.QRPath = serveFlags.qrOutput
	}
	if flags.Changed("numeric-code") {
		c.NumericCode = serveFlags.numericCode
	}
	if flags.Changed("provider") {
		c.Provider = serveFlags.provider
	}
	if flags.Changed("store") {
		c.StoreBackend = serveFlags.store
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	applyServeFlags(cmd, &cfg)
	c := cfg

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	lock, err := lockfile.AcquireLock(c.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	p, err := policy.Load(c.PolicyFile)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	rdb, err := openRedis(ctx, c)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	st, dedup, err := openStore(c, rdb)
	if err != nil {
		return err
	}
	defer st.Close()
	pauses, err := openPauses(c, rdb)
	if err != nil {
		return err
	}

	ai := openGenAI(c)
	g := openGoogle(ctx, c)
	loc := loadLocation(c.DisplayTimezone)

	pool := worker.New(worker.DefaultSize, worker.DefaultQueue)
	pool.Start(ctx)
	defer pool.Stop()

	index, ingester, err := openIngester(c, ai, g)
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
		force := c.ForceReindex
		if err := pool.Submit("initial-sync", func(ctx context.Context) error {
			report, err := ingester.SyncFolder(ctx, force)
			slog.Info("initial knowledge base sync", "indexed", report.Indexed, "unchanged", report.Unchanged, "failed", report.Failed, "removed", report.Removed)
			return err
		}); err != nil {
			slog.Error("failed to queue initial knowledge base sync", "error", err)
		}
	}

	prov, err := openProvider(ctx, c)
	if err != nil {
		return err
	}

	asst := assistant.New(chatter(ai), p, buildAssistantOptions(c, p, g, index)...)

	dOpts := buildDispatcherOptions(c)
	dOpts = append(dOpts,
		messaging.WithDedup(dedup),
		messaging.WithFlow(flow.NewEngine(p)),
		messaging.WithPool(pool),
	)
	if ai != nil {
		dOpts = append(dOpts, messaging.WithTranscription(ai, media.NewDownloader(nil, c.WhapiToken)))
	}
	if c.AppointmentsEnabled {
		var cal scheduler.Calendar
		if g.calendar != nil {
			cal = g.calendar
		}
		var chat scheduler.Chatter
		if ai != nil {
			chat = ai
		}
		dOpts = append(dOpts, messaging.WithAppointments(scheduler.New(cal, chat,
			scheduler.WithCalendarID(c.CalendarID),
			scheduler.WithLocation(loc),
			scheduler.WithStorageLocation(loadLocation(c.StorageTimezone)),
		)))
	}
	if g.sheets != nil {
		dOpts = append(dOpts, messaging.WithCampaigns(outreach.NewRunner(g.sheets, prov.svc, buildOutreachOptions(c, loc)...), pool))
	}
	if mailer := notify.NewMailer(buildNotifyOptions(c)...); mailer.Configured() {
		dOpts = append(dOpts, messaging.WithLeads(mailer))
	} else {
		slog.Warn("lead email not configured, leads are only logged")
	}

	d := messaging.NewDispatcher(prov.svc, st, pauses, asst, p, dOpts...)

	if err := prov.svc.Start(ctx); err != nil {
		return fmt.Errorf("start %s provider: %w", c.Provider, err)
	}
	defer prov.svc.Stop()
	go d.Run(ctx)

	apiOpts := buildAPIOptions(c)
	apiOpts = append(apiOpts, api.WithPauses(pauses))
	if ingester != nil {
		apiOpts = append(apiOpts, api.WithDocumentSync(ingester, pool, c.SyncSecret))
	}
	if prov.hook != nil {
		apiOpts = append(apiOpts, api.WithTwilioHandler(prov.hook))
	}
	server := api.NewServer(d, apiOpts...)

	if prov.whapi != nil && c.BotURL != "" {
		if err := prov.whapi.SetWebhook(ctx, c.BotURL); err != nil {
			slog.Error("failed to register webhook", "url", c.BotURL, "error", err)
		} else {
			slog.Info("webhook registered", "url", c.BotURL)
		}
	}

	slog.Info("wapi serving", "addr", c.addr(), "provider", c.Provider, "store", c.StoreBackend, "pause", c.PauseBackend)
	return server.Run(ctx)
}

// chatter returns ai as an assistant.Chatter, or nil.
func chatter(ai *genai.Client) assistant.Chatter {
	if ai == nil {
		return nil
	}
	return ai
}

// buildAssistantOptions wires the listings sheet, the document index and,
// when enabled, the state machine over the policy's flow states.
func buildAssistantOptions(c Config, p *policy.Policy, g googleClients, index *rag.Index) []assistant.Option {
	opts := []assistant.Option{assistant.WithHistoryEntries(c.HistoryPromptEntries)}
	if c.StateMachine {
		opts = append(opts, assistant.WithStateMachine(p.StateNames()...))
	}
	if g.sheets != nil && c.PropertySheetID != "" {
		opts = append(opts, assistant.WithListings(listings.NewSource(g.sheets, c.PropertySheetID, c.PropertySheetName)))
	}
	if index != nil {
		opts = append(opts, assistant.WithRetriever(index))
	}
	return opts
}
