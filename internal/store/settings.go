package store

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/tdsync/core/internal/model"
)

// UpsertSetting writes a setting's value and sync-shadow fields. Callers
// enforce the local-only confinement rule (spec invariant 5) before
// reaching the Store — local-only keys may still be written here for the
// device's own use, they are simply excluded from outbox emission and
// inbound apply by the Mutation API and Sync Engine.
func (s *Store) UpsertSetting(tx *sql.Tx, key, value string, updatedAt time.Time, updatedByDevice string, syncVersion int) error {
	_, err := tx.Exec(`
		INSERT INTO settings (key, value, updated_at, updated_by_device, sync_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at,
			updated_by_device = excluded.updated_by_device,
			sync_version = excluded.sync_version
	`, key, value, updatedAt, updatedByDevice, syncVersion)
	if err != nil {
		return IO("upsert setting", err)
	}
	return nil
}

// GetSetting returns a setting's value by key.
func (s *Store) GetSetting(key string) (*model.Setting, error) {
	var st model.Setting
	err := s.conn.QueryRow(`SELECT key, value FROM settings WHERE key = ?`, key).Scan(&st.Key, &st.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("setting", sql.ErrNoRows)
	}
	if err != nil {
		return nil, IO("get setting", err)
	}
	return &st, nil
}

// GetSettingSyncVersion returns the current sync_version for key, or 0 if
// the setting does not yet exist — used by the Mutation API to compute the
// next version without fetching the full row.
func (s *Store) GetSettingSyncVersion(key string) (int, error) {
	var version int
	err := s.conn.QueryRow(`SELECT sync_version FROM settings WHERE key = ?`, key).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, IO("get setting sync version", err)
	}
	return version, nil
}

// GetSettingShadow returns a setting's sync-shadow fields, used by the Sync
// Engine's LWW precedence check. exists is false if the key has never been
// written locally.
func (s *Store) GetSettingShadow(key string) (*model.Shadow, bool, error) {
	var sh model.Shadow
	err := s.conn.QueryRow(`SELECT updated_at, updated_by_device, sync_version FROM settings WHERE key = ?`, key).
		Scan(&sh.UpdatedAt, &sh.UpdatedByDevice, &sh.SyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, IO("get setting shadow", err)
	}
	return &sh, true, nil
}

// ListSettings returns all settings. Callers that must respect the
// local-only rule for outbound purposes filter with model.IsLocalOnly.
func (s *Store) ListSettings() ([]*model.Setting, error) {
	rows, err := s.conn.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, IO("list settings", err)
	}
	defer rows.Close()

	var out []*model.Setting
	for rows.Next() {
		var st model.Setting
		if err := rows.Scan(&st.Key, &st.Value); err != nil {
			return nil, IO("scan setting", err)
		}
		out = append(out, &st)
	}
	return out, IO("list settings", rows.Err())
}

// DeleteSetting hard-deletes a setting.
func (s *Store) DeleteSetting(tx *sql.Tx, key string) error {
	if _, err := tx.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return IO("delete setting", err)
	}
	return nil
}

// InsertTaskChangelog appends a local-only changelog row for a task
// mutation (spec §4.2: "a task changelog row is emitted for each changed
// field"). Never synced.
func (s *Store) InsertTaskChangelog(tx *sql.Tx, entry *model.TaskChangelog) error {
	_, err := tx.Exec(`
		INSERT INTO task_changelog (task_id, action, field, previous_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.TaskID, string(entry.Action), entry.Field, entry.OldValue, entry.NewValue, entry.CreatedAt)
	if err != nil {
		return IO("insert task changelog", err)
	}
	return nil
}

// ListTaskChangelog returns changelog entries for a task, most recent first.
func (s *Store) ListTaskChangelog(taskID string, limit int) ([]*model.TaskChangelog, error) {
	limitSQL := ""
	args := []any{taskID}
	if limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.conn.Query(`
		SELECT id, task_id, action, field, previous_value, new_value, created_at
		FROM task_changelog WHERE task_id = ? ORDER BY created_at DESC`+limitSQL, args...)
	if err != nil {
		return nil, IO("list task changelog", err)
	}
	defer rows.Close()

	var out []*model.TaskChangelog
	for rows.Next() {
		var c model.TaskChangelog
		var action string
		var idInt int64
		if err := rows.Scan(&idInt, &c.TaskID, &action, &c.Field, &c.OldValue, &c.NewValue, &c.CreatedAt); err != nil {
			return nil, IO("scan task changelog", err)
		}
		c.ID = strconv.FormatInt(idInt, 10)
		c.Action = model.ChangelogAction(action)
		out = append(out, &c)
	}
	return out, IO("list task changelog", rows.Err())
}
