package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Processed log statuses.
const (
	StatusProcessed     = "processed"
	StatusErrorLoading  = "error_loading"
	StatusRemovedSource = "removed_from_source"
)

// ProcessedFileName is the log file name inside the index directory.
const ProcessedFileName = "processed_files.json"

// Entry records the last ingestion of one source file.
type Entry struct {
	MTime  float64 `json:"mtime"`
	Status string  `json:"status"`
}

// ProcessedLog maps a source path to its last ingestion, persisted as one
// JSON object.
type ProcessedLog struct {
	path    string
	mu      sync.Mutex
	entries map[string]Entry
}

// LoadProcessedLog reads the log at path. A missing or unreadable file
// starts an empty log.
func LoadProcessedLog(path string) *ProcessedLog {
	l := &ProcessedLog{path: path, entries: make(map[string]Entry)}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("LoadProcessedLog: read failed, starting empty", "path", path, "error", err)
		}
		return l
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		slog.Error("LoadProcessedLog: parse failed, starting empty", "path", path, "error", err)
		l.entries = make(map[string]Entry)
	}
	return l
}

// Get returns the entry for path.
func (l *ProcessedLog) Get(path string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[path]
	return e, ok
}

// Set records an entry in memory; call Save to persist.
func (l *ProcessedLog) Set(path string, e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[path] = e
}

// Paths returns the logged paths in sorted order.
func (l *ProcessedLog) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for p := range l.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clear forgets every entry.
func (l *ProcessedLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]Entry)
}

// Save writes the log through a temp file and rename.
func (l *ProcessedLog) Save() error {
	l.mu.Lock()
	data, err := json.MarshalIndent(l.entries, "", "    ")
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode processed log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".processed-*")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}
