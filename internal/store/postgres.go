package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// Database connection pool configuration constants
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversations and dedup markers in Postgres, for
// deployments running more than one instance.
type PostgresStore struct {
	sqlDedup
	db *sql.DB
}

var _ ConversationStore = (*PostgresStore)(nil)

// NewPostgresStore connects using WithPostgresDSN and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{sqlDedup: sqlDedup{db: db}, db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*models.ConversationRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM conversations WHERE user_id = $1`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore Get failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return decodeRecord(userID, data)
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, userID string, old, next *models.ConversationRecord) (bool, error) {
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
			`INSERT INTO conversations (user_id, version, record, updated_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id) DO NOTHING`,
			userID, version, string(data), now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET version = $1, record = $2, updated_at = $3 WHERE user_id = $4 AND version = $5`,
			version, string(data), now, userID, old.Version)
	}
	if err != nil {
		slog.Error("PostgresStore CompareAndSwap failed", "error", err, "userID", userID)
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
