package mutation

import (
	"database/sql"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
)

// CreateSubtaskInput carries the fields a host supplies to create a subtask.
type CreateSubtaskInput struct {
	TaskID string
	Title  string
	IsDone bool
}

// CreateSubtask validates, persists and journals a new subtask (spec §4.2).
func (m *Mutator) CreateSubtask(in CreateSubtaskInput) (*model.TaskSubtask, error) {
	title := model.NormalizeName(in.Title)
	if title == "" {
		return nil, model.ErrSubtaskTitleRequired
	}
	ok, err := m.Store.TaskExists(in.TaskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrTaskNotFound
	}

	now := m.now()
	st := &model.TaskSubtask{
		ID:        m.newID(),
		TaskID:    in.TaskID,
		Title:     title,
		IsDone:    in.IsDone,
		CreatedAt: now,
	}

	err = m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.UpsertSubtask(tx, st, now, m.DeviceID, 1); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityTaskSubtask, st.ID, model.OpUpsert, subtaskPayload(st), now, 1)
	})
	if err != nil {
		return nil, err
	}
	st.Shadow = model.Shadow{UpdatedAt: now, UpdatedByDevice: m.DeviceID, SyncVersion: 1}
	return st, nil
}

// UpdateSubtaskInput carries the mutable fields of an existing subtask.
type UpdateSubtaskInput struct {
	ID     string
	Title  string
	IsDone bool
}

// UpdateSubtask replaces an existing subtask's fields, bumping its sync version.
func (m *Mutator) UpdateSubtask(in UpdateSubtaskInput) (*model.TaskSubtask, error) {
	title := model.NormalizeName(in.Title)
	if title == "" {
		return nil, model.ErrSubtaskTitleRequired
	}
	existing, err := m.Store.GetSubtask(in.ID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	st := &model.TaskSubtask{
		ID:        existing.ID,
		TaskID:    existing.TaskID,
		Title:     title,
		IsDone:    in.IsDone,
		CreatedAt: existing.CreatedAt,
	}
	nextVersion := existing.SyncVersion + 1

	err = m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.UpsertSubtask(tx, st, now, m.DeviceID, nextVersion); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityTaskSubtask, st.ID, model.OpUpsert, subtaskPayload(st), now, nextVersion)
	})
	if err != nil {
		return nil, err
	}
	st.Shadow = model.Shadow{UpdatedAt: now, UpdatedByDevice: m.DeviceID, SyncVersion: nextVersion}
	return st, nil
}

// DeleteSubtask hard-deletes a subtask, tombstones it and journals a DELETE.
func (m *Mutator) DeleteSubtask(id string) error {
	if _, err := m.Store.GetSubtask(id); err != nil {
		return err
	}
	now := m.now()
	return m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.DeleteSubtask(tx, id); err != nil {
			return err
		}
		if err := m.Store.UpsertTombstone(tx, &store.Tombstone{
			EntityType: model.EntityTaskSubtask, EntityID: id, DeletedAt: now, DeletedByDevice: m.DeviceID,
		}); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityTaskSubtask, id, model.OpDelete, nil, now, 0)
	})
}

func subtaskPayload(st *model.TaskSubtask) map[string]any {
	return map[string]any{
		"id":         st.ID,
		"task_id":    st.TaskID,
		"title":      st.Title,
		"is_done":    st.IsDone,
		"created_at": st.CreatedAt,
	}
}
