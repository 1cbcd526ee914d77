package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// legacyTurn is the history-only file format: a bare JSON array of
// {role, parts} entries where the assistant role was called "model".
type legacyTurn struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// decodeRecord parses a stored record, accepting the legacy history-only
// array format.
func decodeRecord(userID string, data []byte) (*models.ConversationRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var turns []legacyTurn
		if err := json.Unmarshal(trimmed, &turns); err != nil {
			return nil, fmt.Errorf("decode legacy history: %w", err)
		}
		rec := models.NewConversationRecord(userID)
		for _, t := range turns {
			if len(t.Parts) == 0 {
				continue
			}
			role := models.RoleUser
			if t.Role == "model" || t.Role == string(models.RoleAssistant) {
				role = models.RoleAssistant
			}
			rec.History = append(rec.History, models.Turn{Role: role, Content: t.Parts[0]})
		}
		return rec, nil
	}
	var rec models.ConversationRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if rec.UserID == "" {
		rec.UserID = userID
	}
	return &rec, nil
}

func encodeRecord(rec *models.ConversationRecord) ([]byte, error) {
	return json.Marshal(rec)
}

// sameVersion reports whether the currently stored record is the one the
// caller read as old. Absent matches only absent.
func sameVersion(cur, old *models.ConversationRecord) bool {
	if cur == nil || old == nil {
		return cur == nil && old == nil
	}
	return cur.Version == old.Version
}
