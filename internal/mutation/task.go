package mutation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
)

// CreateTaskInput carries the fields a host supplies to create a task.
type CreateTaskInput struct {
	Title         string
	Description   string
	NotesMarkdown string
	ProjectID     string
	Status        model.TaskStatus
	Priority      model.TaskPriority
	IsImportant   bool
	DueAt         *time.Time
	RemindAt      *time.Time
	Recurrence    model.Recurrence
}

// CreateTask validates, persists and journals a new task (spec §4.2).
func (m *Mutator) CreateTask(in CreateTaskInput) (*model.Task, error) {
	title := model.NormalizeName(in.Title)
	if title == "" {
		return nil, model.ErrTaskTitleRequired
	}
	if in.ProjectID != "" {
		ok, err := m.Store.ProjectExists(in.ProjectID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, model.ErrProjectNotFound
		}
	}

	now := m.now()
	t := &model.Task{
		ID:            m.newID(),
		Title:         title,
		Description:   in.Description,
		NotesMarkdown: in.NotesMarkdown,
		ProjectID:     in.ProjectID,
		Status:        defaultTaskStatus(in.Status),
		Priority:      defaultPriority(in.Priority),
		IsImportant:   in.IsImportant,
		DueAt:         in.DueAt,
		RemindAt:      in.RemindAt,
		Recurrence:    defaultRecurrence(in.Recurrence),
		CreatedAt:     now,
	}

	err := m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.UpsertTask(tx, t, now, m.DeviceID, 1); err != nil {
			return err
		}
		if err := m.insertOutbox(tx, model.EntityTask, t.ID, model.OpUpsert, taskPayload(t), now, 1); err != nil {
			return err
		}
		return m.changelog(tx, t.ID, model.ChangelogCreated, "title", "", t.Title, now)
	})
	if err != nil {
		return nil, err
	}
	t.Shadow = model.Shadow{UpdatedAt: now, UpdatedByDevice: m.DeviceID, SyncVersion: 1}
	return t, nil
}

// UpdateTaskInput carries the mutable fields of an existing task.
type UpdateTaskInput struct {
	ID            string
	Title         string
	Description   string
	NotesMarkdown string
	ProjectID     string
	Status        model.TaskStatus
	Priority      model.TaskPriority
	IsImportant   bool
	DueAt         *time.Time
	RemindAt      *time.Time
	Recurrence    model.Recurrence
}

// UpdateTask replaces an existing task's fields, bumps its sync version,
// emits one changelog row per changed field, and — when the update
// completes a recurring task — creates the next occurrence (spec §4.2).
// The second return value is the newly created occurrence, or nil.
func (m *Mutator) UpdateTask(in UpdateTaskInput) (*model.Task, *model.Task, error) {
	title := model.NormalizeName(in.Title)
	if title == "" {
		return nil, nil, model.ErrTaskTitleRequired
	}
	if in.ProjectID != "" {
		ok, err := m.Store.ProjectExists(in.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, model.ErrProjectNotFound
		}
	}

	existing, err := m.Store.GetTask(in.ID)
	if err != nil {
		return nil, nil, err
	}

	now := m.now()
	t := &model.Task{
		ID:            existing.ID,
		Title:         title,
		Description:   in.Description,
		NotesMarkdown: in.NotesMarkdown,
		ProjectID:     in.ProjectID,
		Status:        defaultTaskStatus(in.Status),
		Priority:      defaultPriority(in.Priority),
		IsImportant:   in.IsImportant,
		DueAt:         in.DueAt,
		RemindAt:      in.RemindAt,
		Recurrence:    defaultRecurrence(in.Recurrence),
		CreatedAt:     existing.CreatedAt,
	}
	nextVersion := existing.SyncVersion + 1

	completesRecurrence := existing.Status != model.TaskDone && t.Status == model.TaskDone &&
		t.Recurrence != model.RecurrenceNone && t.DueAt != nil

	var occurrence *model.Task
	err = m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.UpsertTask(tx, t, now, m.DeviceID, nextVersion); err != nil {
			return err
		}
		if err := m.insertOutbox(tx, model.EntityTask, t.ID, model.OpUpsert, taskPayload(t), now, nextVersion); err != nil {
			return err
		}
		if err := m.emitTaskChangelog(tx, existing, t, now); err != nil {
			return err
		}

		if completesRecurrence {
			occ := m.deriveNextOccurrence(t)
			if err := m.Store.UpsertTask(tx, occ, now, m.DeviceID, 1); err != nil {
				return err
			}
			if err := m.insertOutbox(tx, model.EntityTask, occ.ID, model.OpUpsert, taskPayload(occ), now, 1); err != nil {
				return err
			}
			if err := m.changelog(tx, occ.ID, model.ChangelogCreated, "title", "", occ.Title, now); err != nil {
				return err
			}
			occurrence = occ
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	t.Shadow = model.Shadow{UpdatedAt: now, UpdatedByDevice: m.DeviceID, SyncVersion: nextVersion}
	if occurrence != nil {
		occurrence.Shadow = model.Shadow{UpdatedAt: now, UpdatedByDevice: m.DeviceID, SyncVersion: 1}
	}
	return t, occurrence, nil
}

// DeleteTask hard-deletes a task (cascading its subtasks), tombstones it and
// journals a DELETE.
func (m *Mutator) DeleteTask(id string) error {
	if _, err := m.Store.GetTask(id); err != nil {
		return err
	}
	now := m.now()
	return m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.DeleteTask(tx, id); err != nil {
			return err
		}
		if err := m.Store.UpsertTombstone(tx, &store.Tombstone{
			EntityType: model.EntityTask, EntityID: id, DeletedAt: now, DeletedByDevice: m.DeviceID,
		}); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityTask, id, model.OpDelete, nil, now, 0)
	})
}

func defaultTaskStatus(s model.TaskStatus) model.TaskStatus {
	if s == "" {
		return model.TaskTodo
	}
	if !model.IsValidTaskStatus(s) {
		return model.TaskTodo
	}
	return s
}

func defaultPriority(p model.TaskPriority) model.TaskPriority {
	if p == "" {
		return model.PriorityNormal
	}
	if !model.IsValidPriority(p) {
		return model.PriorityNormal
	}
	return p
}

func defaultRecurrence(r model.Recurrence) model.Recurrence {
	if r == "" {
		return model.RecurrenceNone
	}
	if !model.IsValidRecurrence(r) {
		return model.RecurrenceNone
	}
	return r
}

// deriveNextOccurrence computes the next occurrence of a completed recurring
// task per spec §4.2: DAILY → +1 day, WEEKLY → +7 days, MONTHLY → +1
// calendar month, preserving the reminder offset relative to the due time.
func (m *Mutator) deriveNextOccurrence(t *model.Task) *model.Task {
	due := *t.DueAt
	var nextDue time.Time
	switch t.Recurrence {
	case model.RecurrenceDaily:
		nextDue = due.AddDate(0, 0, 1)
	case model.RecurrenceWeekly:
		nextDue = due.AddDate(0, 0, 7)
	case model.RecurrenceMonthly:
		nextDue = due.AddDate(0, 1, 0)
	default:
		nextDue = due
	}

	var nextRemind *time.Time
	if t.RemindAt != nil {
		offset := t.RemindAt.Sub(due)
		v := nextDue.Add(offset)
		nextRemind = &v
	}

	return &model.Task{
		ID:            m.newID(),
		Title:         t.Title,
		Description:   t.Description,
		NotesMarkdown: t.NotesMarkdown,
		ProjectID:     t.ProjectID,
		Status:        model.TaskTodo,
		Priority:      t.Priority,
		IsImportant:   t.IsImportant,
		DueAt:         &nextDue,
		RemindAt:      nextRemind,
		Recurrence:    t.Recurrence,
		CreatedAt:     nextDue,
	}
}

// emitTaskChangelog records one CREATED/UPDATED/STATUS_CHANGED row per
// changed field, grounded on the teacher's diffJSON "only changed fields"
// approach but applied to the concrete Task struct.
func (m *Mutator) emitTaskChangelog(tx *sql.Tx, prev, next *model.Task, now time.Time) error {
	if prev.Status != next.Status {
		if err := m.Store.InsertTaskChangelog(tx, &model.TaskChangelog{
			TaskID: next.ID, Action: model.ChangelogStatusChanged, Field: "status",
			OldValue: string(prev.Status), NewValue: string(next.Status), CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	fields := []struct {
		name     string
		oldValue string
		newValue string
	}{
		{"title", prev.Title, next.Title},
		{"description", prev.Description, next.Description},
		{"notes_markdown", prev.NotesMarkdown, next.NotesMarkdown},
		{"project_id", prev.ProjectID, next.ProjectID},
		{"priority", string(prev.Priority), string(next.Priority)},
		{"recurrence", string(prev.Recurrence), string(next.Recurrence)},
		{"is_important", fmt.Sprint(prev.IsImportant), fmt.Sprint(next.IsImportant)},
		{"due_at", formatTimePtr(prev.DueAt), formatTimePtr(next.DueAt)},
		{"remind_at", formatTimePtr(prev.RemindAt), formatTimePtr(next.RemindAt)},
	}
	for _, f := range fields {
		if err := m.changelog(tx, next.ID, model.ChangelogUpdated, f.name, f.oldValue, f.newValue, now); err != nil {
			return err
		}
	}
	return nil
}

func formatTimePtr(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}

func taskPayload(t *model.Task) map[string]any {
	return map[string]any{
		"id":             t.ID,
		"title":          t.Title,
		"description":    t.Description,
		"notes_markdown": t.NotesMarkdown,
		"project_id":     t.ProjectID,
		"status":         string(t.Status),
		"priority":       string(t.Priority),
		"is_important":   t.IsImportant,
		"due_at":         t.DueAt,
		"remind_at":      t.RemindAt,
		"recurrence":     string(t.Recurrence),
		"created_at":     t.CreatedAt,
	}
}
