package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/whapi"
	"github.com/Bossianity/Project-WAPi/internal/worker"
)

// SyncRequest is the body of POST /webhook-google-sync.
type SyncRequest struct {
	DocumentID  string `json:"documentId"`
	SecretToken string `json:"secretToken"`
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "WhatsApp Bot is running!")
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, "healthHandler") {
		return
	}
	result := map[string]any{"service": "wapi"}
	if s.opts.Pauses != nil {
		snap, err := s.opts.Pauses.Snapshot(r.Context())
		if err != nil {
			slog.Warn("Server.healthHandler: pause snapshot failed", "error", err)
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Pause registry unavailable"))
			return
		}
		result["pause"] = snap
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// hookHandler receives gateway webhooks. The batch runs to completion even
// if the gateway drops the connection, and per-message failures never change
// the status code.
func (s *Server) hookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost, "hookHandler") {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		slog.Warn("Server.hookHandler: failed to read body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read request body"))
		return
	}
	payload, err := whapi.ParseWebhook(body)
	if err != nil {
		slog.Warn("Server.hookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	msgs := payload.InboundMessages()
	if len(msgs) == 0 {
		slog.Debug("Server.hookHandler: webhook without messages")
		writeJSONResponse(w, http.StatusOK, models.NoMessages())
		return
	}
	slog.Debug("Server.hookHandler: dispatching batch", "count", len(msgs))
	report := s.dispatcher.HandleBatch(context.WithoutCancel(r.Context()), msgs)
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

func (s *Server) googleSyncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost, "googleSyncHandler") {
		return
	}
	var req SyncRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		slog.Warn("Server.googleSyncHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" || req.SecretToken == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing documentId or secretToken"))
		return
	}
	if s.opts.SyncSecret == "" {
		slog.Error("Server.googleSyncHandler: sync secret not configured")
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Sync secret is not configured"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.SecretToken), []byte(s.opts.SyncSecret)) != 1 {
		slog.Warn("Server.googleSyncHandler: secret mismatch", "documentID", req.DocumentID)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid secret token"))
		return
	}
	if s.opts.Syncer == nil || s.opts.Pool == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Document sync is not available"))
		return
	}

	syncer, docID := s.opts.Syncer, req.DocumentID
	err := s.opts.Pool.Submit("doc-sync:"+docID, func(ctx context.Context) error {
		return syncer.SyncGoogleDocument(ctx, docID)
	})
	if err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			slog.Warn("Server.googleSyncHandler: queue full", "documentID", docID)
		} else {
			slog.Error("Server.googleSyncHandler: submit failed", "documentID", docID, "error", err)
		}
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Background queue is full, try again later"))
		return
	}
	slog.Info("Server.googleSyncHandler: document sync queued", "documentID", docID)
	writeJSONResponse(w, http.StatusAccepted, models.SuccessWithMessage("Document update task queued.", nil))
}
