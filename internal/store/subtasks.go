package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/tdsync/core/internal/model"
)

// UpsertSubtask unconditionally replaces a subtask row keyed by id.
func (s *Store) UpsertSubtask(tx *sql.Tx, st *model.TaskSubtask, updatedAt time.Time, updatedByDevice string, syncVersion int) error {
	_, err := tx.Exec(`
		INSERT INTO task_subtasks (id, task_id, title, is_done, created_at, updated_at, updated_by_device, sync_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task_id = excluded.task_id,
			title = excluded.title,
			is_done = excluded.is_done,
			updated_at = excluded.updated_at,
			updated_by_device = excluded.updated_by_device,
			sync_version = excluded.sync_version
	`, st.ID, st.TaskID, st.Title, boolToInt(st.IsDone), st.CreatedAt, updatedAt, updatedByDevice, syncVersion)
	if err != nil {
		return IO("upsert subtask", err)
	}
	return nil
}

// GetSubtask returns a subtask by id.
func (s *Store) GetSubtask(id string) (*model.TaskSubtask, error) {
	row := s.conn.QueryRow(`
		SELECT id, task_id, title, is_done, created_at, updated_at, updated_by_device, sync_version
		FROM task_subtasks WHERE id = ?
	`, id)
	return scanSubtask(row)
}

// ListSubtasks returns subtasks matching pred, most recently created first.
func (s *Store) ListSubtasks(pred Predicate) ([]*model.TaskSubtask, error) {
	where, args := pred.whereClause("id", "task_id")
	limitSQL, limitArgs := pred.limitClause()
	args = append(args, limitArgs...)

	rows, err := s.conn.Query(`
		SELECT id, task_id, title, is_done, created_at, updated_at, updated_by_device, sync_version
		FROM task_subtasks`+where+` ORDER BY created_at DESC, id`+limitSQL, args...)
	if err != nil {
		return nil, IO("list subtasks", err)
	}
	defer rows.Close()

	var out []*model.TaskSubtask
	for rows.Next() {
		st, err := scanSubtaskRows(rows)
		if err != nil {
			return nil, IO("scan subtask", err)
		}
		out = append(out, st)
	}
	return out, IO("list subtasks", rows.Err())
}

// DeleteSubtask hard-deletes a subtask.
func (s *Store) DeleteSubtask(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM task_subtasks WHERE id = ?`, id); err != nil {
		return IO("delete subtask", err)
	}
	return nil
}

func scanSubtask(row *sql.Row) (*model.TaskSubtask, error) {
	var st model.TaskSubtask
	var done int
	err := row.Scan(&st.ID, &st.TaskID, &st.Title, &done, &st.CreatedAt,
		&st.Shadow.UpdatedAt, &st.Shadow.UpdatedByDevice, &st.Shadow.SyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("subtask", sql.ErrNoRows)
	}
	if err != nil {
		return nil, IO("get subtask", err)
	}
	st.IsDone = done != 0
	return &st, nil
}

func scanSubtaskRows(rows *sql.Rows) (*model.TaskSubtask, error) {
	var st model.TaskSubtask
	var done int
	if err := rows.Scan(&st.ID, &st.TaskID, &st.Title, &done, &st.CreatedAt,
		&st.Shadow.UpdatedAt, &st.Shadow.UpdatedByDevice, &st.Shadow.SyncVersion); err != nil {
		return nil, err
	}
	st.IsDone = done != 0
	return &st, nil
}
