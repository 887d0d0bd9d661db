package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/tdsync/core/internal/model"
)

// UpsertProject unconditionally replaces a project row keyed by id,
// stamping the sync-shadow fields. Used by both local mutation (C2) and
// incoming-pull application (C4) — the caller decides updated_at/device/
// version, the Store just persists them.
func (s *Store) UpsertProject(tx *sql.Tx, p *model.Project, updatedAt time.Time, updatedByDevice string, syncVersion int) error {
	_, err := tx.Exec(`
		INSERT INTO projects (id, name, description, color, status, created_at, updated_at, updated_by_device, sync_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			color = excluded.color,
			status = excluded.status,
			updated_at = excluded.updated_at,
			updated_by_device = excluded.updated_by_device,
			sync_version = excluded.sync_version
	`, p.ID, p.Name, p.Description, p.Color, string(p.Status), p.CreatedAt, updatedAt, updatedByDevice, syncVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return ConstraintViolation("project name exists", ErrProjectNameExists)
		}
		return IO("upsert project", err)
	}
	return nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(id string) (*model.Project, error) {
	row := s.conn.QueryRow(`
		SELECT id, name, description, color, status, created_at, updated_at, updated_by_device, sync_version
		FROM projects WHERE id = ?
	`, id)
	return scanProject(row)
}

// ListProjects returns projects matching pred, most recently updated first,
// with ties broken by id for stable pagination.
func (s *Store) ListProjects(pred Predicate) ([]*model.Project, error) {
	where, args := pred.whereClause("id", "")
	limitSQL, limitArgs := pred.limitClause()
	args = append(args, limitArgs...)

	rows, err := s.conn.Query(`
		SELECT id, name, description, color, status, created_at, updated_at, updated_by_device, sync_version
		FROM projects`+where+` ORDER BY updated_at DESC, id`+limitSQL, args...)
	if err != nil {
		return nil, IO("list projects", err)
	}
	defer rows.Close()

	var out []*model.Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, IO("scan project", err)
		}
		out = append(out, p)
	}
	return out, IO("list projects", rows.Err())
}

// CountProjects counts projects matching pred.
func (s *Store) CountProjects(pred Predicate) (int, error) {
	where, args := pred.whereClause("id", "")
	var count int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM projects`+where, args...).Scan(&count)
	if err != nil {
		return 0, IO("count projects", err)
	}
	return count, nil
}

// DeleteProject hard-deletes a project and nulls project_id on its tasks
// (spec §4.1's documented project-delete cascade).
func (s *Store) DeleteProject(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`UPDATE tasks SET project_id = NULL WHERE project_id = ?`, id); err != nil {
		return IO("null task project_id", err)
	}
	if _, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id); err != nil {
		return IO("delete project", err)
	}
	return nil
}

func scanProject(row *sql.Row) (*model.Project, error) {
	var p model.Project
	var status string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Color, &status, &p.CreatedAt,
		&p.Shadow.UpdatedAt, &p.Shadow.UpdatedByDevice, &p.Shadow.SyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("project", model.ErrProjectNotFound)
	}
	if err != nil {
		return nil, IO("get project", err)
	}
	p.Status = model.ProjectStatus(status)
	return &p, nil
}

func scanProjectRows(rows *sql.Rows) (*model.Project, error) {
	var p model.Project
	var status string
	if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Color, &status, &p.CreatedAt,
		&p.Shadow.UpdatedAt, &p.Shadow.UpdatedByDevice, &p.Shadow.SyncVersion); err != nil {
		return nil, err
	}
	p.Status = model.ProjectStatus(status)
	return &p, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. modernc.org/sqlite surfaces these as plain strings rather than
// a typed error, same as mattn/go-sqlite3's result-code error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var verr interface{ Error() string }
	if errors.As(err, &verr) {
		return strings.Contains(strings.ToUpper(verr.Error()), "UNIQUE CONSTRAINT")
	}
	return false
}
