package mutation

import (
	"database/sql"
	"time"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
)

// timeNow lets callers of InstantiateTask inject a fixed anchor in tests.
type timeNow func() time.Time

func offsetDuration(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}

// CreateTemplateInput carries the fields a host supplies to create a task template.
type CreateTemplateInput struct {
	Name                string
	TitleTemplate       string
	Description         string
	Priority            model.TaskPriority
	IsImportant         bool
	DueOffsetMinutes    *int
	RemindOffsetMinutes *int
	Recurrence          model.Recurrence
}

// CreateTemplate validates, persists and journals a new task template (spec §4.2, §3.1).
func (m *Mutator) CreateTemplate(in CreateTemplateInput) (*model.TaskTemplate, error) {
	name := model.NormalizeName(in.Name)
	if name == "" {
		return nil, model.ErrTemplateNameRequired
	}

	now := m.now()
	t := &model.TaskTemplate{
		ID:                  m.newID(),
		Name:                name,
		TitleTemplate:       in.TitleTemplate,
		Description:         in.Description,
		Priority:            defaultPriority(in.Priority),
		IsImportant:         in.IsImportant,
		DueOffsetMinutes:    in.DueOffsetMinutes,
		RemindOffsetMinutes: in.RemindOffsetMinutes,
		Recurrence:          defaultRecurrence(in.Recurrence),
		CreatedAt:           now,
	}
	if err := model.ValidateTemplate(t); err != nil {
		return nil, err
	}

	err := m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.UpsertTemplate(tx, t, now, m.DeviceID, 1); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityTaskTemplate, t.ID, model.OpUpsert, templatePayload(t), now, 1)
	})
	if err != nil {
		return nil, err
	}
	t.Shadow = model.Shadow{UpdatedAt: now, UpdatedByDevice: m.DeviceID, SyncVersion: 1}
	return t, nil
}

// UpdateTemplateInput carries the mutable fields of an existing task template.
type UpdateTemplateInput struct {
	ID                  string
	Name                string
	TitleTemplate       string
	Description         string
	Priority            model.TaskPriority
	IsImportant         bool
	DueOffsetMinutes    *int
	RemindOffsetMinutes *int
	Recurrence          model.Recurrence
}

// UpdateTemplate replaces an existing template's fields, bumping its sync version.
func (m *Mutator) UpdateTemplate(in UpdateTemplateInput) (*model.TaskTemplate, error) {
	name := model.NormalizeName(in.Name)
	if name == "" {
		return nil, model.ErrTemplateNameRequired
	}
	existing, err := m.Store.GetTemplate(in.ID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	t := &model.TaskTemplate{
		ID:                  existing.ID,
		Name:                name,
		TitleTemplate:       in.TitleTemplate,
		Description:         in.Description,
		Priority:            defaultPriority(in.Priority),
		IsImportant:         in.IsImportant,
		DueOffsetMinutes:    in.DueOffsetMinutes,
		RemindOffsetMinutes: in.RemindOffsetMinutes,
		Recurrence:          defaultRecurrence(in.Recurrence),
		CreatedAt:           existing.CreatedAt,
	}
	if err := model.ValidateTemplate(t); err != nil {
		return nil, err
	}
	nextVersion := existing.SyncVersion + 1

	err = m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.UpsertTemplate(tx, t, now, m.DeviceID, nextVersion); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityTaskTemplate, t.ID, model.OpUpsert, templatePayload(t), now, nextVersion)
	})
	if err != nil {
		return nil, err
	}
	t.Shadow = model.Shadow{UpdatedAt: now, UpdatedByDevice: m.DeviceID, SyncVersion: nextVersion}
	return t, nil
}

// DeleteTemplate hard-deletes a template, tombstones it and journals a DELETE.
func (m *Mutator) DeleteTemplate(id string) error {
	if _, err := m.Store.GetTemplate(id); err != nil {
		return err
	}
	now := m.now()
	return m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.DeleteTemplate(tx, id); err != nil {
			return err
		}
		if err := m.Store.UpsertTombstone(tx, &store.Tombstone{
			EntityType: model.EntityTaskTemplate, EntityID: id, DeletedAt: now, DeletedByDevice: m.DeviceID,
		}); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityTaskTemplate, id, model.OpDelete, nil, now, 0)
	})
}

// InstantiateTask creates a new task from a template, applying its offsets
// relative to the supplied anchor time (typically "now").
func (m *Mutator) InstantiateTask(templateID string, anchor timeNow) (*model.Task, error) {
	tmpl, err := m.Store.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}

	title := tmpl.TitleTemplate
	if title == "" {
		title = tmpl.Name
	}

	in := CreateTaskInput{
		Title:       title,
		Description: tmpl.Description,
		Priority:    tmpl.Priority,
		IsImportant: tmpl.IsImportant,
		Recurrence:  tmpl.Recurrence,
	}
	if tmpl.DueOffsetMinutes != nil {
		due := anchor().Add(offsetDuration(*tmpl.DueOffsetMinutes))
		in.DueAt = &due
		if tmpl.RemindOffsetMinutes != nil {
			remind := anchor().Add(offsetDuration(*tmpl.RemindOffsetMinutes))
			in.RemindAt = &remind
		}
	}
	return m.CreateTask(in)
}

func templatePayload(t *model.TaskTemplate) map[string]any {
	return map[string]any{
		"id":                    t.ID,
		"name":                  t.Name,
		"title_template":        t.TitleTemplate,
		"description":           t.Description,
		"priority":              string(t.Priority),
		"is_important":          t.IsImportant,
		"due_offset_minutes":    t.DueOffsetMinutes,
		"remind_offset_minutes": t.RemindOffsetMinutes,
		"recurrence":            string(t.Recurrence),
		"created_at":            t.CreatedAt,
	}
}
