package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/tdsync/core/internal/model"
)

// UpsertTemplate unconditionally replaces a task template row keyed by id.
func (s *Store) UpsertTemplate(tx *sql.Tx, t *model.TaskTemplate, updatedAt time.Time, updatedByDevice string, syncVersion int) error {
	_, err := tx.Exec(`
		INSERT INTO task_templates (id, name, title_template, description, priority, is_important,
			due_offset_minutes, remind_offset_minutes, recurrence, created_at, updated_at, updated_by_device, sync_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			title_template = excluded.title_template,
			description = excluded.description,
			priority = excluded.priority,
			is_important = excluded.is_important,
			due_offset_minutes = excluded.due_offset_minutes,
			remind_offset_minutes = excluded.remind_offset_minutes,
			recurrence = excluded.recurrence,
			updated_at = excluded.updated_at,
			updated_by_device = excluded.updated_by_device,
			sync_version = excluded.sync_version
	`, t.ID, t.Name, t.TitleTemplate, t.Description, string(t.Priority), boolToInt(t.IsImportant),
		nullableInt(t.DueOffsetMinutes), nullableInt(t.RemindOffsetMinutes), string(t.Recurrence),
		t.CreatedAt, updatedAt, updatedByDevice, syncVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return ConstraintViolation("template name exists", ErrTemplateNameExists)
		}
		return IO("upsert template", err)
	}
	return nil
}

// GetTemplate returns a task template by id.
func (s *Store) GetTemplate(id string) (*model.TaskTemplate, error) {
	row := s.conn.QueryRow(`
		SELECT id, name, title_template, description, priority, is_important,
			due_offset_minutes, remind_offset_minutes, recurrence, created_at, updated_at, updated_by_device, sync_version
		FROM task_templates WHERE id = ?
	`, id)
	return scanTemplate(row)
}

// ListTemplates returns task templates matching pred.
func (s *Store) ListTemplates(pred Predicate) ([]*model.TaskTemplate, error) {
	where, args := pred.whereClause("id", "")
	limitSQL, limitArgs := pred.limitClause()
	args = append(args, limitArgs...)

	rows, err := s.conn.Query(`
		SELECT id, name, title_template, description, priority, is_important,
			due_offset_minutes, remind_offset_minutes, recurrence, created_at, updated_at, updated_by_device, sync_version
		FROM task_templates`+where+` ORDER BY updated_at DESC, id`+limitSQL, args...)
	if err != nil {
		return nil, IO("list templates", err)
	}
	defer rows.Close()

	var out []*model.TaskTemplate
	for rows.Next() {
		t, err := scanTemplateRows(rows)
		if err != nil {
			return nil, IO("scan template", err)
		}
		out = append(out, t)
	}
	return out, IO("list templates", rows.Err())
}

// DeleteTemplate hard-deletes a task template.
func (s *Store) DeleteTemplate(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM task_templates WHERE id = ?`, id); err != nil {
		return IO("delete template", err)
	}
	return nil
}

func scanTemplate(row *sql.Row) (*model.TaskTemplate, error) {
	var t model.TaskTemplate
	var priority, recurrence string
	var important int
	var dueOffset, remindOffset sql.NullInt64
	err := row.Scan(&t.ID, &t.Name, &t.TitleTemplate, &t.Description, &priority, &important,
		&dueOffset, &remindOffset, &recurrence, &t.CreatedAt,
		&t.Shadow.UpdatedAt, &t.Shadow.UpdatedByDevice, &t.Shadow.SyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("template", sql.ErrNoRows)
	}
	if err != nil {
		return nil, IO("get template", err)
	}
	applyTemplateScan(&t, priority, important, dueOffset, remindOffset, recurrence)
	return &t, nil
}

func scanTemplateRows(rows *sql.Rows) (*model.TaskTemplate, error) {
	var t model.TaskTemplate
	var priority, recurrence string
	var important int
	var dueOffset, remindOffset sql.NullInt64
	if err := rows.Scan(&t.ID, &t.Name, &t.TitleTemplate, &t.Description, &priority, &important,
		&dueOffset, &remindOffset, &recurrence, &t.CreatedAt,
		&t.Shadow.UpdatedAt, &t.Shadow.UpdatedByDevice, &t.Shadow.SyncVersion); err != nil {
		return nil, err
	}
	applyTemplateScan(&t, priority, important, dueOffset, remindOffset, recurrence)
	return &t, nil
}

func applyTemplateScan(t *model.TaskTemplate, priority string, important int, dueOffset, remindOffset sql.NullInt64, recurrence string) {
	t.Priority = model.TaskPriority(priority)
	t.IsImportant = important != 0
	if dueOffset.Valid {
		v := int(dueOffset.Int64)
		t.DueOffsetMinutes = &v
	}
	if remindOffset.Valid {
		v := int(remindOffset.Int64)
		t.RemindOffsetMinutes = &v
	}
	t.Recurrence = model.Recurrence(recurrence)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
