package rag

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Bossianity/Project-WAPi/internal/googleapi"
)

// DocumentSource fetches Google Drive documents for the content-sync
// webhook.
type DocumentSource interface {
	MimeType(ctx context.Context, fileID string) (string, error)
	DocText(ctx context.Context, documentID string) (string, error)
	SpreadsheetText(ctx context.Context, spreadsheetID string) (string, error)
}

var supportedExtensions = map[string]bool{".txt": true, ".md": true, ".pdf": true}

// SyncReport summarizes one folder scan.
type SyncReport struct {
	Indexed   int
	Unchanged int
	Failed    int
	Removed   int
}

// Ingester keeps the index in step with the data folder and with synced
// Google documents.
type Ingester struct {
	index   *Index
	log     *ProcessedLog
	dataDir string
	docs    DocumentSource
}

// NewIngester wires an ingester. docs may be nil when Google access is not
// configured.
func NewIngester(index *Index, log *ProcessedLog, dataDir string, docs DocumentSource) *Ingester {
	return &Ingester{index: index, log: log, dataDir: dataDir, docs: docs}
}

// SyncFolder indexes new or modified files, and drops chunks of files that
// disappeared. With force the log and every chunk are cleared first.
func (g *Ingester) SyncFolder(ctx context.Context, force bool) (SyncReport, error) {
	var report SyncReport
	if force {
		slog.Info("Ingester.SyncFolder: forced reindex, clearing index and log")
		if err := g.index.Reset(); err != nil {
			return report, fmt.Errorf("reset index: %w", err)
		}
		g.log.Clear()
	}

	info, err := os.Stat(g.dataDir)
	if err != nil || !info.IsDir() {
		return report, fmt.Errorf("data folder %q not found or not a directory", g.dataDir)
	}

	present := make(map[string]bool)
	err = filepath.WalkDir(g.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Ingester.SyncFolder: walk error", "path", path, "error", err)
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != g.dataDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		present[path] = true
		g.syncFile(ctx, path, &report)
		return nil
	})
	if err != nil {
		return report, err
	}

	for _, path := range g.log.Paths() {
		if present[path] || !strings.HasPrefix(path, g.dataDir) {
			continue
		}
		entry, _ := g.log.Get(path)
		if entry.Status != StatusProcessed {
			continue
		}
		if _, err := g.index.DeleteSource(ctx, path); err != nil {
			slog.Error("Ingester.SyncFolder: delete removed source failed", "path", path, "error", err)
			continue
		}
		entry.Status = StatusRemovedSource
		g.log.Set(path, entry)
		report.Removed++
		slog.Info("Ingester.SyncFolder: source removed", "path", path)
	}

	if err := g.log.Save(); err != nil {
		slog.Error("Ingester.SyncFolder: save processed log failed", "error", err)
	}
	slog.Info("Ingester.SyncFolder: scan complete", "dir", g.dataDir, "indexed", report.Indexed, "unchanged", report.Unchanged, "failed", report.Failed, "removed", report.Removed)
	return report, nil
}

func (g *Ingester) syncFile(ctx context.Context, path string, report *SyncReport) {
	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("Ingester.syncFile: file disappeared before processing", "path", path)
		return
	}
	mtime := float64(info.ModTime().UnixNano()) / 1e9
	if e, ok := g.log.Get(path); ok && e.MTime == mtime && e.Status == StatusProcessed {
		report.Unchanged++
		return
	}

	text, err := readDocument(path)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("no text content")
	}
	if err == nil {
		_, err = g.index.Replace(ctx, path, text)
	}
	if err != nil {
		slog.Error("Ingester.syncFile: processing failed", "path", path, "error", err)
		g.log.Set(path, Entry{MTime: mtime, Status: StatusErrorLoading})
		report.Failed++
		return
	}
	g.log.Set(path, Entry{MTime: mtime, Status: StatusProcessed})
	report.Indexed++
}

// SyncGoogleDocument re-indexes one Google Doc or Sheet by Drive ID. Other
// mime types are skipped.
func (g *Ingester) SyncGoogleDocument(ctx context.Context, documentID string) error {
	if g.docs == nil {
		return fmt.Errorf("google documents not configured")
	}
	mime, err := g.docs.MimeType(ctx, documentID)
	if err != nil {
		return fmt.Errorf("lookup mime type: %w", err)
	}

	var text string
	switch mime {
	case googleapi.MimeGoogleDoc:
		text, err = g.docs.DocText(ctx, documentID)
	case googleapi.MimeGoogleSheet:
		text, err = g.docs.SpreadsheetText(ctx, documentID)
	default:
		slog.Warn("Ingester.SyncGoogleDocument: unsupported mime type, skipping", "documentID", documentID, "mimeType", mime)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch document content: %w", err)
	}
	n, err := g.index.Replace(ctx, documentID, text)
	if err != nil {
		return err
	}
	slog.Info("Ingester.SyncGoogleDocument: document synced", "documentID", documentID, "mimeType", mime, "chunks", n)
	return nil
}

func readDocument(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
