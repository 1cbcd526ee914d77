package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversations and dedup markers in SQLite.
type SQLiteStore struct {
	sqlDedup
	db *sql.DB
}

var _ ConversationStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens the SQLite database named by WithSQLiteDSN, creating
// its directory and applying migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOptions(opts)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if dir := sqliteDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: migrations applied")
	return &SQLiteStore{sqlDedup: sqlDedup{db: db}, db: db}, nil
}

// sqliteDir extracts the directory of a file path or file: URI DSN.
func sqliteDir(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(p, "?"); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == ":memory:" {
		return ""
	}
	return filepath.Dir(p)
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) (*models.ConversationRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM conversations WHERE user_id = ?`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore Get failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return decodeRecord(userID, []byte(data))
}

func (s *SQLiteStore) CompareAndSwap(ctx context.Context, userID string, old, next *models.ConversationRecord) (bool, error) {
	version := nextVersion(old)
	saved := *next
	saved.Version = version
	data, err := encodeRecord(&saved)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()

	var res sql.Result
	if old == nil {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversations (user_id, version, record, updated_at) VALUES (?, ?, ?, ?)`,
			userID, version, string(data), now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET version = ?, record = ?, updated_at = ? WHERE user_id = ? AND version = ?`,
			version, string(data), now, userID, old.Version)
	}
	if err != nil {
		slog.Error("SQLiteStore CompareAndSwap failed", "error", err, "userID", userID)
		return false, fmt.Errorf("write conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	next.Version = version
	return true, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
