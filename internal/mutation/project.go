package mutation

import (
	"database/sql"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
)

// CreateProjectInput carries the fields a host supplies to create a project.
type CreateProjectInput struct {
	Name        string
	Description string
	Color       string
	Status      model.ProjectStatus
}

// CreateProject validates, persists and journals a new project (spec §4.2).
func (m *Mutator) CreateProject(in CreateProjectInput) (*model.Project, error) {
	name := model.NormalizeName(in.Name)
	if name == "" {
		return nil, model.ErrProjectNameRequired
	}
	status := in.Status
	if status == "" {
		status = model.ProjectActive
	}
	if !model.IsValidProjectStatus(status) {
		status = model.ProjectActive
	}

	now := m.now()
	p := &model.Project{
		ID:          m.newID(),
		Name:        name,
		Description: in.Description,
		Color:       in.Color,
		Status:      status,
		CreatedAt:   now,
	}

	err := m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.UpsertProject(tx, p, now, m.DeviceID, 1); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityProject, p.ID, model.OpUpsert, projectPayload(p), now, 1)
	})
	if err != nil {
		return nil, err
	}
	p.Shadow = model.Shadow{UpdatedAt: now, UpdatedByDevice: m.DeviceID, SyncVersion: 1}
	return p, nil
}

// UpdateProjectInput carries the mutable fields of an existing project.
type UpdateProjectInput struct {
	ID          string
	Name        string
	Description string
	Color       string
	Status      model.ProjectStatus
}

// UpdateProject unconditionally replaces the named fields of an existing
// project, bumping its sync version.
func (m *Mutator) UpdateProject(in UpdateProjectInput) (*model.Project, error) {
	name := model.NormalizeName(in.Name)
	if name == "" {
		return nil, model.ErrProjectNameRequired
	}
	if !model.IsValidProjectStatus(in.Status) {
		return nil, model.ErrInvalidProjectStatus
	}

	existing, err := m.Store.GetProject(in.ID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	p := &model.Project{
		ID:          existing.ID,
		Name:        name,
		Description: in.Description,
		Color:       in.Color,
		Status:      in.Status,
		CreatedAt:   existing.CreatedAt,
	}
	nextVersion := existing.SyncVersion + 1

	err = m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.UpsertProject(tx, p, now, m.DeviceID, nextVersion); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityProject, p.ID, model.OpUpsert, projectPayload(p), now, nextVersion)
	})
	if err != nil {
		return nil, err
	}
	p.Shadow = model.Shadow{UpdatedAt: now, UpdatedByDevice: m.DeviceID, SyncVersion: nextVersion}
	return p, nil
}

// DeleteProject hard-deletes a project, tombstones it and journals a DELETE.
func (m *Mutator) DeleteProject(id string) error {
	if _, err := m.Store.GetProject(id); err != nil {
		return err
	}
	now := m.now()
	return m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.DeleteProject(tx, id); err != nil {
			return err
		}
		if err := m.Store.UpsertTombstone(tx, &store.Tombstone{
			EntityType: model.EntityProject, EntityID: id, DeletedAt: now, DeletedByDevice: m.DeviceID,
		}); err != nil {
			return err
		}
		return m.insertOutbox(tx, model.EntityProject, id, model.OpDelete, nil, now, 0)
	})
}

func projectPayload(p *model.Project) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"color":       p.Color,
		"status":      string(p.Status),
		"created_at":  p.CreatedAt,
	}
}
