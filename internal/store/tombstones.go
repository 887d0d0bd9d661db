package store

import (
	"database/sql"
	"time"

	"github.com/tdsync/core/internal/model"
)

// Tombstone marks a locally (or remotely-applied) deleted entity. Consulted
// on incoming UPSERTs of the same id and cleared when that UPSERT applies
// (spec invariant 3).
type Tombstone struct {
	EntityType      model.EntityType
	EntityID        string
	DeletedAt       time.Time
	DeletedByDevice string
}

// UpsertTombstone records a deletion within the caller's transaction.
func (s *Store) UpsertTombstone(tx *sql.Tx, t *Tombstone) error {
	_, err := tx.Exec(`
		INSERT INTO deleted_records (entity_type, entity_id, deleted_at, deleted_by_device)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			deleted_at = excluded.deleted_at,
			deleted_by_device = excluded.deleted_by_device
	`, string(t.EntityType), t.EntityID, t.DeletedAt, t.DeletedByDevice)
	if err != nil {
		return IO("upsert tombstone", err)
	}
	return nil
}

// ClearTombstone removes a tombstone, called when a later UPSERT for the
// same (entity_type, entity_id) is applied.
func (s *Store) ClearTombstone(tx *sql.Tx, entityType model.EntityType, entityID string) error {
	if _, err := tx.Exec(`DELETE FROM deleted_records WHERE entity_type = ? AND entity_id = ?`, string(entityType), entityID); err != nil {
		return IO("clear tombstone", err)
	}
	return nil
}

// HasTombstone reports whether (entityType, entityID) is currently tombstoned.
func (s *Store) HasTombstone(entityType model.EntityType, entityID string) (bool, error) {
	var count int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM deleted_records WHERE entity_type = ? AND entity_id = ?`,
		string(entityType), entityID).Scan(&count)
	if err != nil {
		return false, IO("check tombstone", err)
	}
	return count > 0, nil
}

// ListTombstones returns up to limit tombstones, most recently deleted first.
func (s *Store) ListTombstones(limit int) ([]*Tombstone, error) {
	limitSQL := ""
	var args []any
	if limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.conn.Query(`
		SELECT entity_type, entity_id, deleted_at, deleted_by_device
		FROM deleted_records ORDER BY deleted_at DESC`+limitSQL, args...)
	if err != nil {
		return nil, IO("list tombstones", err)
	}
	defer rows.Close()

	var out []*Tombstone
	for rows.Next() {
		var t Tombstone
		var entityType string
		if err := rows.Scan(&entityType, &t.EntityID, &t.DeletedAt, &t.DeletedByDevice); err != nil {
			return nil, IO("scan tombstone", err)
		}
		t.EntityType = model.EntityType(entityType)
		out = append(out, &t)
	}
	return out, IO("list tombstones", rows.Err())
}
