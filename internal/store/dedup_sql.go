package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sqlDedup keeps message IDs in the inbound_dedup table created by the
// SQLite and Postgres migrations. Both drivers bind $n placeholders in order.
type sqlDedup struct {
	db *sql.DB
}

var (
	_ DedupRepo = (*SQLiteStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
)

func (d sqlDedup) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbound_dedup WHERE message_id = $1`, messageID).Scan(&n); err != nil {
		return false, fmt.Errorf("dedup lookup %s: %w", messageID, err)
	}
	return n > 0, nil
}

func (d sqlDedup) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (message_id, user_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		messageID, userID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound %s: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound %s: %w", messageID, err)
	}
	return n == 1, nil
}

func (d sqlDedup) MarkProcessed(ctx context.Context, messageID string) error {
	if _, err := d.db.ExecContext(ctx, `UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`, time.Now().UTC(), messageID); err != nil {
		return fmt.Errorf("mark processed %s: %w", messageID, err)
	}
	return nil
}
