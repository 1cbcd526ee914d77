package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Bossianity/Project-WAPi/internal/genai"
	"github.com/Bossianity/Project-WAPi/internal/googleapi"
	"github.com/Bossianity/Project-WAPi/internal/messaging"
	"github.com/Bossianity/Project-WAPi/internal/pause"
	"github.com/Bossianity/Project-WAPi/internal/rag"
	"github.com/Bossianity/Project-WAPi/internal/store"
	"github.com/Bossianity/Project-WAPi/internal/twiliowhatsapp"
	"github.com/Bossianity/Project-WAPi/internal/whapi"
	"github.com/Bossianity/Project-WAPi/internal/whatsapp"
)

// googleClients holds the optional Google API clients. Fields are nil when
// credentials are missing or a client could not be built.
type googleClients struct {
	sheets   *googleapi.Sheets
	docs     *googleapi.Documents
	calendar *googleapi.Calendar
}

// openGoogle builds whichever Google clients the credentials allow. Missing
// credentials are not an error; the features that need them are disabled.
func openGoogle(ctx context.Context, c Config) googleClients {
	var g googleClients
	creds, err := googleapi.LoadCredentials(ctx, c.GoogleCredsJSON, c.GoogleCredsPath)
	if err != nil {
		if errors.Is(err, googleapi.ErrNoCredentials) {
			slog.Warn("openGoogle: no Google credentials, sheets, docs and calendar disabled")
		} else {
			slog.Error("openGoogle: failed to load Google credentials", "error", err)
		}
		return g
	}
	opts := googleapi.ClientOptions(ctx, creds)
	if g.sheets, err = googleapi.NewSheets(ctx, opts...); err != nil {
		slog.Error("openGoogle: sheets client failed", "error", err)
		g.sheets = nil
	}
	if g.docs, err = googleapi.NewDocuments(ctx, opts...); err != nil {
		slog.Error("openGoogle: docs client failed", "error", err)
		g.docs = nil
	}
	if g.calendar, err = googleapi.NewCalendar(ctx, opts...); err != nil {
		slog.Error("openGoogle: calendar client failed", "error", err)
		g.calendar = nil
	}
	return g
}

// documentSource returns docs as a rag.DocumentSource, or nil.
func (g googleClients) documentSource() rag.DocumentSource {
	if g.docs == nil {
		return nil
	}
	return g.docs
}

// openGenAI returns the model client, or nil when no API key is set.
func openGenAI(c Config) *genai.Client {
	client, err := genai.NewClient(buildGenAIOptions(c)...)
	if err != nil {
		slog.Warn("openGenAI: language model disabled", "error", err)
		return nil
	}
	return client
}

// openRedis returns a client when a Redis backend is selected.
func openRedis(ctx context.Context, c Config) (*goredis.Client, error) {
	if c.StoreBackend != "redis" && c.PauseBackend != "redis" {
		return nil, nil
	}
	if c.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required for the redis backend")
	}
	client := goredis.NewClient(&goredis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
	}
	return client, nil
}

// openStore opens the conversation store and the message dedup repository.
// SQL stores double as the dedup repository.
func openStore(c Config, rdb *goredis.Client) (store.ConversationStore, store.DedupRepo, error) {
	opts := buildStoreOptions(c)
	var (
		st  store.ConversationStore
		err error
	)
	switch c.StoreBackend {
	case "memory":
		st = store.NewMemoryStore()
	case "file":
		st, err = store.NewFileStore(opts...)
	case "bolt":
		st, err = store.NewBoltStore(opts...)
	case "sqlite":
		st, err = store.NewSQLiteStore(opts...)
	case "postgres":
		st, err = store.NewPostgresStore(opts...)
	case "redis":
		st = store.NewRedisStore(rdb, opts...)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", c.StoreBackend, err)
	}
	if d, ok := st.(store.DedupRepo); ok {
		return st, d, nil
	}
	if rdb != nil {
		return st, store.NewRedisDedup(rdb, store.WithKeyPrefix(AppName)), nil
	}
	return st, store.NewMemoryDedup(0), nil
}

// openPauses selects the pause registry backend.
func openPauses(c Config, rdb *goredis.Client) (pause.Registry, error) {
	switch c.PauseBackend {
	case "memory":
		return pause.NewMemoryRegistry(), nil
	case "redis":
		return pause.NewRedisRegistry(rdb, AppName), nil
	}
	return nil, fmt.Errorf("unknown pause backend %q", c.PauseBackend)
}

// provider is the selected WhatsApp transport.
type provider struct {
	svc messaging.Service
	// hook receives Twilio callbacks; nil for other providers.
	hook http.Handler
	// whapi is set for the Whapi.Cloud gateway.
	whapi *whapi.Client
}

// openProvider builds the configured WhatsApp transport.
func openProvider(ctx context.Context, c Config) (provider, error) {
	switch c.Provider {
	case "whapi":
		client, err := whapi.NewClient(buildWhapiOptions(c)...)
		if err != nil {
			return provider{}, fmt.Errorf("whapi: %w", err)
		}
		return provider{svc: messaging.NewWhapiService(client), whapi: client}, nil
	case "twilio":
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(c.TwilioSID),
			twiliowhatsapp.WithAuthToken(c.TwilioToken),
			twiliowhatsapp.WithFromWhats(c.TwilioFrom),
		)
		if err != nil {
			return provider{}, fmt.Errorf("twilio: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return provider{svc: svc, hook: http.HandlerFunc(svc.TwilioWebhookHandler)}, nil
	case "whatsmeow":
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(c)...)
		if err != nil {
			return provider{}, fmt.Errorf("whatsmeow: %w", err)
		}
		return provider{svc: messaging.NewWhatsAppService(client)}, nil
	}
	return provider{}, fmt.Errorf("unknown WhatsApp provider %q", c.Provider)
}

// openIngester opens the document index and its ingester. Both are nil when
// no embedding client is available.
func openIngester(c Config, ai *genai.Client, g googleClients) (*rag.Index, *rag.Ingester, error) {
	if ai == nil {
		slog.Warn("openIngester: no language model, knowledge base disabled")
		return nil, nil, nil
	}
	index, err := rag.OpenIndex(c.RAGIndexDir, ai)
	if err != nil {
		return nil, nil, fmt.Errorf("open index %s: %w", c.RAGIndexDir, err)
	}
	log := rag.LoadProcessedLog(filepath.Join(c.RAGIndexDir, rag.ProcessedFileName))
	return index, rag.NewIngester(index, log, c.RAGDataDir, g.documentSource()), nil
}
