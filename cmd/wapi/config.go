package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"github.com/Bossianity/Project-WAPi/internal/api"
	"github.com/Bossianity/Project-WAPi/internal/genai"
	"github.com/Bossianity/Project-WAPi/internal/messaging"
	"github.com/Bossianity/Project-WAPi/internal/notify"
	"github.com/Bossianity/Project-WAPi/internal/outreach"
	"github.com/Bossianity/Project-WAPi/internal/scheduler"
	"github.com/Bossianity/Project-WAPi/internal/store"
	"github.com/Bossianity/Project-WAPi/internal/util"
	"github.com/Bossianity/Project-WAPi/internal/whapi"
	"github.com/Bossianity/Project-WAPi/internal/whatsapp"
)

// Defaults that are not owned by a single package.
const (
	AppName              = "wapi"
	DefaultProvider      = "whapi"
	DefaultStoreBackend  = "file"
	DefaultPauseBackend  = "memory"
	DefaultPort          = 5000
	DefaultRAGDataDir    = "company_data"
	DefaultSQLiteFile    = "wapi.db"
	DefaultConversations = "conversations"
	DefaultIndexDir      = "index"
	DefaultHistoryTurns  = 10
)

// Config holds the environment configuration; flags override it.
type Config struct {
	Debug      bool
	StateDir   string
	PolicyFile string

	OpenAIKey    string
	OpenAIRAGKey string
	OpenAIModel  string

	Provider    string
	WhapiURL    string
	WhapiToken  string
	BotURL      string
	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
	WhatsAppDSN string
	QRPath      string
	NumericCode bool

	StoreBackend  string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PauseBackend  string
	Admins        []string

	GoogleCredsJSON string
	GoogleCredsPath string

	PropertySheetID      string
	PropertySheetName    string
	DefaultOutreachSheet string
	TemplateSheet        string
	ContactsSheet        string
	OutreachDelay        time.Duration
	SyncSecret           string

	CalendarID          string
	DisplayTimezone     string
	StorageTimezone     string
	AppointmentsEnabled bool
	// StateMachine makes the model answer with a next flow state.
	StateMachine bool

	RAGDataDir   string
	RAGIndexDir  string
	ForceReindex bool

	LeadSender     string
	LeadPassword   string
	LeadReceiver   string
	LeadSMTPServer string
	LeadSMTPPort   int

	StaleAfter           time.Duration
	HistoryMaxTurns      int
	HistoryPromptEntries int
	Port                 int
}

// defaultStateDir is $XDG_STATE_HOME/wapi.
func defaultStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// loadDotEnv loads .env when present.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}
}

// loadEnvironmentConfig reads every setting from the environment.
func loadEnvironmentConfig() Config {
	cfg := Config{
		Debug:      util.ParseBoolEnv("WAPI_DEBUG", false),
		StateDir:   util.EnvOr("WAPI_STATE_DIR", defaultStateDir()),
		PolicyFile: os.Getenv("WAPI_POLICY_FILE"),

		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIRAGKey: os.Getenv("OPENAI_API_KEY_RAG"),
		OpenAIModel:  util.EnvOr("OPENAI_MODEL", genai.DefaultModel),

		Provider:    util.EnvOr("WHATSAPP_PROVIDER", DefaultProvider),
		WhapiURL:    util.EnvOr("WHAPI_API_URL", whapi.DefaultBaseURL),
		WhapiToken:  os.Getenv("WHAPI_API_TOKEN"),
		BotURL:      os.Getenv("BOT_URL"),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:  os.Getenv("TWILIO_FROM_NUMBER"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),

		StoreBackend:  util.EnvOr("WAPI_STORE", DefaultStoreBackend),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       util.ParseIntEnv("REDIS_DB", 0),
		PauseBackend:  util.EnvOr("WAPI_PAUSE_BACKEND", DefaultPauseBackend),
		Admins:        util.ParseListEnv("ADMIN_NUMBERS"),

		GoogleCredsJSON: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"),
		GoogleCredsPath: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),

		PropertySheetID:      os.Getenv("PROPERTY_SHEET_ID"),
		PropertySheetName:    util.EnvOr("PROPERTY_SHEET_NAME", "Properties"),
		DefaultOutreachSheet: os.Getenv("DEFAULT_OUTREACH_SHEET_ID"),
		TemplateSheet:        util.EnvOr("MESSAGE_TEMPLATE_SHEET_NAME", outreach.DefaultTemplateSheet),
		ContactsSheet:        util.EnvOr("CONTACTS_SHEET_NAME", outreach.DefaultContactsSheet),
		OutreachDelay:        time.Duration(util.ParseIntEnv("OUTREACH_MESSAGE_DELAY_SECONDS", int(outreach.DefaultDelay/time.Second))) * time.Second,
		SyncSecret:           os.Getenv("GOOGLE_SYNC_SECRET_TOKEN"),

		CalendarID:          util.EnvOr("GOOGLE_CALENDAR_ID", scheduler.DefaultCalendarID),
		DisplayTimezone:     util.EnvOr("WAPI_DISPLAY_TIMEZONE", scheduler.DefaultTimezone),
		StorageTimezone:     os.Getenv("WAPI_STORAGE_TIMEZONE"),
		AppointmentsEnabled: util.ParseBoolEnv("APPOINTMENTS_ENABLED", true),
		StateMachine:        util.ParseBoolEnv("WAPI_STATE_MACHINE", false),

		RAGDataDir:   util.EnvOr("RAG_DATA_DIR", DefaultRAGDataDir),
		RAGIndexDir:  os.Getenv("RAG_INDEX_DIR"),
		ForceReindex: util.ParseBoolEnv("FORCE_REINDEX", false),

		LeadSender:     os.Getenv("LEAD_EMAIL_SENDER"),
		LeadPassword:   os.Getenv("LEAD_EMAIL_PASSWORD"),
		LeadReceiver:   os.Getenv("LEAD_EMAIL_RECEIVER"),
		LeadSMTPServer: util.EnvOr("LEAD_SMTP_SERVER", notify.DefaultSMTPServer),
		LeadSMTPPort:   util.ParseIntEnv("LEAD_SMTP_PORT", notify.DefaultSMTPPort),

		StaleAfter:           time.Duration(util.ParseIntEnv("STALE_MESSAGE_SECONDS", int(messaging.DefaultStaleAfter/time.Second))) * time.Second,
		HistoryMaxTurns:      util.ParseIntEnv("HISTORY_MAX_TURNS", DefaultHistoryTurns),
		HistoryPromptEntries: util.ParseIntEnv("HISTORY_PROMPT_ENTRIES", 6),
		Port:                 util.ParseIntEnv("PORT", DefaultPort),
	}

	slog.Debug("environment variables loaded",
		"WAPI_STATE_DIR", cfg.StateDir,
		"WHATSAPP_PROVIDER", cfg.Provider,
		"WAPI_STORE", cfg.StoreBackend,
		"WAPI_PAUSE_BACKEND", cfg.PauseBackend,
		"OPENAI_API_KEY_SET", cfg.OpenAIKey != "",
		"WHAPI_API_TOKEN_SET", cfg.WhapiToken != "",
		"GOOGLE_CREDENTIALS_SET", cfg.GoogleCredsJSON != "" || cfg.GoogleCredsPath != "",
		"ADMIN_NUMBERS", len(cfg.Admins),
		"PORT", cfg.Port)
	return cfg
}

// resolve fills values derived from the state directory once flags have
// been applied.
func (c *Config) resolve() {
	if c.WhatsAppDSN == "" {
		c.WhatsAppDSN = whatsapp.DefaultDSN(c.StateDir)
	}
	if c.RAGIndexDir == "" {
		c.RAGIndexDir = filepath.Join(c.StateDir, DefaultIndexDir)
	}
	if c.StorageTimezone == "" {
		c.StorageTimezone = c.DisplayTimezone
	}
}

func (c Config) addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// buildStoreOptions selects the options for the configured conversation
// store backend.
func buildStoreOptions(c Config) []store.Option {
	switch c.StoreBackend {
	case "file":
		return []store.Option{store.WithDir(filepath.Join(c.StateDir, DefaultConversations))}
	case "bolt":
		return []store.Option{store.WithDir(c.StateDir)}
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" || store.DetectDSNType(dsn) != "sqlite3" {
			dsn = filepath.Join(c.StateDir, DefaultSQLiteFile)
		}
		return []store.Option{store.WithSQLiteDSN(dsn)}
	case "postgres":
		return []store.Option{store.WithPostgresDSN(c.DatabaseURL)}
	case "redis":
		return []store.Option{store.WithKeyPrefix(AppName)}
	}
	return nil
}

// buildGenAIOptions constructs GenAI configuration options.
func buildGenAIOptions(c Config) []genai.Option {
	var opts []genai.Option
	if c.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(c.OpenAIKey))
	}
	if c.OpenAIRAGKey != "" {
		opts = append(opts, genai.WithEmbeddingAPIKey(c.OpenAIRAGKey))
	}
	if c.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(c.OpenAIModel))
	}
	if c.Debug {
		opts = append(opts, genai.WithDebugDir(filepath.Join(c.StateDir, "debug")))
	}
	return opts
}

// buildWhapiOptions constructs gateway client options.
func buildWhapiOptions(c Config) []whapi.Option {
	opts := []whapi.Option{whapi.WithBaseURL(c.WhapiURL)}
	if c.WhapiToken != "" {
		opts = append(opts, whapi.WithToken(c.WhapiToken))
	}
	return opts
}

// buildWhatsAppOptions constructs whatsmeow client options.
func buildWhatsAppOptions(c Config) []whatsapp.Option {
	opts := []whatsapp.Option{whatsapp.WithDBDSN(c.WhatsAppDSN)}
	if c.QRPath != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(c.QRPath))
	}
	if c.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	if c.Debug {
		opts = append(opts, whatsapp.WithLogLevel("DEBUG"))
	}
	return opts
}

// buildNotifyOptions constructs lead mailer options.
func buildNotifyOptions(c Config) []notify.Option {
	return []notify.Option{
		notify.WithServer(c.LeadSMTPServer, c.LeadSMTPPort),
		notify.WithCredentials(c.LeadSender, c.LeadPassword),
		notify.WithReceiver(c.LeadReceiver),
	}
}

// buildOutreachOptions constructs campaign runner options.
func buildOutreachOptions(c Config, loc *time.Location) []outreach.Option {
	return []outreach.Option{
		outreach.WithTemplateSheet(c.TemplateSheet),
		outreach.WithContactsSheet(c.ContactsSheet),
		outreach.WithDelay(c.OutreachDelay),
		outreach.WithLocation(loc),
	}
}

// buildDispatcherOptions constructs the dispatcher limits and admin list.
// Collaborators are added by the serve command.
func buildDispatcherOptions(c Config) []messaging.DispatcherOption {
	opts := []messaging.DispatcherOption{
		messaging.WithStaleAfter(c.StaleAfter),
		messaging.WithHistoryEntries(2 * c.HistoryMaxTurns),
	}
	if len(c.Admins) > 0 {
		opts = append(opts, messaging.WithAdmins(c.Admins...))
	}
	if c.DefaultOutreachSheet != "" {
		opts = append(opts, messaging.WithDefaultSheet(c.DefaultOutreachSheet))
	}
	return opts
}

// buildAPIOptions constructs API server options.
func buildAPIOptions(c Config) []api.Option {
	return []api.Option{api.WithAddr(c.addr())}
}

// loadLocation returns the named zone, falling back to UTC.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("loadLocation: unknown timezone, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}
