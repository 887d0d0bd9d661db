package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/tdsync/core/internal/model"
)

// UpsertTask unconditionally replaces a task row keyed by id.
func (s *Store) UpsertTask(tx *sql.Tx, t *model.Task, updatedAt time.Time, updatedByDevice string, syncVersion int) error {
	_, err := tx.Exec(`
		INSERT INTO tasks (id, title, description, notes_markdown, project_id, status, priority, is_important,
			due_at, remind_at, recurrence, created_at, updated_at, updated_by_device, sync_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			notes_markdown = excluded.notes_markdown,
			project_id = excluded.project_id,
			status = excluded.status,
			priority = excluded.priority,
			is_important = excluded.is_important,
			due_at = excluded.due_at,
			remind_at = excluded.remind_at,
			recurrence = excluded.recurrence,
			updated_at = excluded.updated_at,
			updated_by_device = excluded.updated_by_device,
			sync_version = excluded.sync_version
	`, t.ID, t.Title, t.Description, t.NotesMarkdown, nullableString(t.ProjectID), string(t.Status), string(t.Priority),
		boolToInt(t.IsImportant), nullableTimePtr(t.DueAt), nullableTimePtr(t.RemindAt), string(t.Recurrence),
		t.CreatedAt, updatedAt, updatedByDevice, syncVersion)
	if err != nil {
		return IO("upsert task", err)
	}
	return nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(id string) (*model.Task, error) {
	row := s.conn.QueryRow(`
		SELECT id, title, description, notes_markdown, project_id, status, priority, is_important,
			due_at, remind_at, recurrence, created_at, updated_at, updated_by_device, sync_version
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

// ListTasks returns tasks matching pred.
func (s *Store) ListTasks(pred Predicate) ([]*model.Task, error) {
	where, args := pred.whereClause("id", "project_id")
	limitSQL, limitArgs := pred.limitClause()
	args = append(args, limitArgs...)

	rows, err := s.conn.Query(`
		SELECT id, title, description, notes_markdown, project_id, status, priority, is_important,
			due_at, remind_at, recurrence, created_at, updated_at, updated_by_device, sync_version
		FROM tasks`+where+` ORDER BY updated_at DESC, id`+limitSQL, args...)
	if err != nil {
		return nil, IO("list tasks", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, IO("scan task", err)
		}
		out = append(out, t)
	}
	return out, IO("list tasks", rows.Err())
}

// CountTasks counts tasks matching pred.
func (s *Store) CountTasks(pred Predicate) (int, error) {
	where, args := pred.whereClause("id", "project_id")
	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM tasks`+where, args...).Scan(&count); err != nil {
		return 0, IO("count tasks", err)
	}
	return count, nil
}

// DeleteTask hard-deletes a task and cascades to its subtasks.
func (s *Store) DeleteTask(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM task_subtasks WHERE task_id = ?`, id); err != nil {
		return IO("cascade delete subtasks", err)
	}
	if _, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return IO("delete task", err)
	}
	return nil
}

// ProjectExists reports whether a project with id exists, used by the
// Mutation API and the Sync Engine to validate task.project_id references.
func (s *Store) ProjectExists(id string) (bool, error) {
	if id == "" {
		return true, nil
	}
	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM projects WHERE id = ?`, id).Scan(&count); err != nil {
		return false, IO("check project exists", err)
	}
	return count > 0, nil
}

// TaskExists reports whether a task with id exists.
func (s *Store) TaskExists(id string) (bool, error) {
	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM tasks WHERE id = ?`, id).Scan(&count); err != nil {
		return false, IO("check task exists", err)
	}
	return count > 0, nil
}

func scanTask(row *sql.Row) (*model.Task, error) {
	var t model.Task
	var status, priority, recurrence string
	var projectID sql.NullString
	var dueAt, remindAt sql.NullTime
	var important int
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.NotesMarkdown, &projectID, &status, &priority, &important,
		&dueAt, &remindAt, &recurrence, &t.CreatedAt, &t.Shadow.UpdatedAt, &t.Shadow.UpdatedByDevice, &t.Shadow.SyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("task", model.ErrTaskNotFound)
	}
	if err != nil {
		return nil, IO("get task", err)
	}
	applyTaskScan(&t, projectID, status, priority, important, dueAt, remindAt, recurrence)
	return &t, nil
}

func scanTaskRows(rows *sql.Rows) (*model.Task, error) {
	var t model.Task
	var status, priority, recurrence string
	var projectID sql.NullString
	var dueAt, remindAt sql.NullTime
	var important int
	if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.NotesMarkdown, &projectID, &status, &priority, &important,
		&dueAt, &remindAt, &recurrence, &t.CreatedAt, &t.Shadow.UpdatedAt, &t.Shadow.UpdatedByDevice, &t.Shadow.SyncVersion); err != nil {
		return nil, err
	}
	applyTaskScan(&t, projectID, status, priority, important, dueAt, remindAt, recurrence)
	return &t, nil
}

func applyTaskScan(t *model.Task, projectID sql.NullString, status, priority string, important int, dueAt, remindAt sql.NullTime, recurrence string) {
	if projectID.Valid {
		t.ProjectID = projectID.String
	}
	t.Status = model.TaskStatus(status)
	t.Priority = model.TaskPriority(priority)
	t.IsImportant = important != 0
	if dueAt.Valid {
		v := dueAt.Time
		t.DueAt = &v
	}
	if remindAt.Valid {
		v := remindAt.Time
		t.RemindAt = &v
	}
	t.Recurrence = model.Recurrence(recurrence)
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTimePtr(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
