package store

import (
	"database/sql"
	"time"
)

// Checkpoint is the singleton cursor row advanced by the Sync Engine once
// the server's response is durably applied (spec invariant 6).
type Checkpoint struct {
	LastSyncCursor string // empty means never synced
	LastSyncedAt   *time.Time
}

// GetCheckpoint returns the current checkpoint.
func (s *Store) GetCheckpoint() (*Checkpoint, error) {
	var cp Checkpoint
	var cursor sql.NullString
	var syncedAt sql.NullTime
	err := s.conn.QueryRow(`SELECT last_sync_cursor, last_synced_at FROM checkpoint WHERE id = 1`).Scan(&cursor, &syncedAt)
	if err != nil {
		return nil, IO("get checkpoint", err)
	}
	if cursor.Valid {
		cp.LastSyncCursor = cursor.String
	}
	if syncedAt.Valid {
		v := syncedAt.Time
		cp.LastSyncedAt = &v
	}
	return &cp, nil
}

// SetCheckpoint atomically advances the checkpoint within the caller's
// transaction. The checkpoint only ever moves forward; it is the caller's
// (Sync Engine's) responsibility to enforce monotonicity (spec P4).
func (s *Store) SetCheckpoint(tx *sql.Tx, cursor string, syncedAt time.Time) error {
	_, err := tx.Exec(`UPDATE checkpoint SET last_sync_cursor = ?, last_synced_at = ? WHERE id = 1`, cursor, syncedAt)
	if err != nil {
		return IO("set checkpoint", err)
	}
	return nil
}
