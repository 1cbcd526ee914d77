// Package api exposes the webhook endpoints: the gateway inbound hook, the
// Twilio hook, the document sync hook and liveness probes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/messaging"
	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/pause"
	"github.com/Bossianity/Project-WAPi/internal/recovery"
	"github.com/Bossianity/Project-WAPi/internal/worker"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":5000"
	// MaxBodyBytes caps webhook request bodies.
	MaxBodyBytes   = 5 << 20
	shutdownPeriod = 10 * time.Second
)

// BatchHandler processes a batch of inbound messages.
type BatchHandler interface {
	HandleBatch(ctx context.Context, msgs []models.InboundMessage) messaging.BatchReport
}

// DocumentSyncer re-ingests one Google document into the retrieval store.
type DocumentSyncer interface {
	SyncGoogleDocument(ctx context.Context, documentID string) error
}

// Submitter queues background work.
type Submitter interface {
	Submit(name string, fn worker.Task) error
}

// Opts configures a Server.
type Opts struct {
	Addr       string
	SyncSecret string
	Syncer     DocumentSyncer
	Pool       Submitter
	Pauses     pause.Registry
	// Twilio serves POST /twilio/hook when set.
	Twilio http.Handler
}

// Option mutates Opts.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithDocumentSync enables POST /webhook-google-sync. Sync jobs run on pool.
func WithDocumentSync(syncer DocumentSyncer, pool Submitter, secret string) Option {
	return func(o *Opts) {
		o.Syncer, o.Pool, o.SyncSecret = syncer, pool, secret
	}
}

// WithPauses reports the pause registry state on /healthz.
func WithPauses(r pause.Registry) Option {
	return func(o *Opts) { o.Pauses = r }
}

// WithTwilioHandler mounts the Twilio inbound webhook.
func WithTwilioHandler(h http.Handler) Option {
	return func(o *Opts) { o.Twilio = h }
}

// Server routes webhook traffic to the dispatcher.
type Server struct {
	dispatcher BatchHandler
	opts       Opts
}

// NewServer creates a Server in front of dispatcher.
func NewServer(dispatcher BatchHandler, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{dispatcher: dispatcher, opts: o}
}

// Handler returns the routed, panic-safe handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.rootHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/hook", s.hookHandler)
	mux.HandleFunc("/webhook-google-sync", s.googleSyncHandler)
	if s.opts.Twilio != nil {
		mux.Handle("/twilio/hook", s.opts.Twilio)
	}
	return recovery.Handler(mux, fallbackErrorResponse)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
