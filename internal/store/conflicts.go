package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/tdsync/core/internal/model"
)

// ConflictStatus enumerates the conflict state machine's states (spec §3.2).
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// Conflict is a persisted semantic mismatch awaiting human resolution.
type Conflict struct {
	ID                     string
	IncomingIdempotencyKey string
	EntityType             model.EntityType
	EntityID               string
	Operation              model.Operation
	ConflictType           string
	ReasonCode             string
	Message                string
	LocalPayload           string
	RemotePayload          string
	BasePayload            string
	Status                 ConflictStatus
	ResolutionStrategy     string
	ResolutionPayload      string
	ResolvedByDevice       string
	DetectedAt             time.Time
	ResolvedAt             *time.Time
}

// ConflictEventType enumerates the audit events appended to a conflict.
type ConflictEventType string

const (
	EventDetected ConflictEventType = "detected"
	EventResolved ConflictEventType = "resolved"
	EventIgnored  ConflictEventType = "ignored"
	EventRetried  ConflictEventType = "retried"
	EventExported ConflictEventType = "exported"
)

// ConflictEvent is one row of a conflict's audit trail.
type ConflictEvent struct {
	ID           int64
	ConflictID   string
	EventType    ConflictEventType
	EventPayload string
	CreatedAt    time.Time
}

// InsertConflict inserts a new conflict row within the caller's transaction.
func (s *Store) InsertConflict(tx *sql.Tx, c *Conflict) error {
	_, err := tx.Exec(`
		INSERT INTO conflicts (id, incoming_idempotency_key, entity_type, entity_id, operation, conflict_type,
			reason_code, message, local_payload, remote_payload, base_payload, status,
			resolution_strategy, resolution_payload, resolved_by_device, detected_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.IncomingIdempotencyKey, string(c.EntityType), c.EntityID, string(c.Operation), c.ConflictType,
		c.ReasonCode, c.Message, nullableString(c.LocalPayload), nullableString(c.RemotePayload), nullableString(c.BasePayload),
		string(c.Status), c.ResolutionStrategy, nullableString(c.ResolutionPayload), c.ResolvedByDevice,
		c.DetectedAt, nullableTimePtr(c.ResolvedAt))
	if err != nil {
		return IO("insert conflict", err)
	}
	return nil
}

// UpdateConflict persists a conflict's mutable fields (status, resolution)
// within the caller's transaction.
func (s *Store) UpdateConflict(tx *sql.Tx, c *Conflict) error {
	_, err := tx.Exec(`
		UPDATE conflicts SET status = ?, resolution_strategy = ?, resolution_payload = ?,
			resolved_by_device = ?, resolved_at = ?, local_payload = ?, remote_payload = ?
		WHERE id = ?
	`, string(c.Status), c.ResolutionStrategy, nullableString(c.ResolutionPayload), c.ResolvedByDevice,
		nullableTimePtr(c.ResolvedAt), nullableString(c.LocalPayload), nullableString(c.RemotePayload), c.ID)
	if err != nil {
		return IO("update conflict", err)
	}
	return nil
}

// GetConflict returns a conflict by id.
func (s *Store) GetConflict(id string) (*Conflict, error) {
	row := s.conn.QueryRow(`
		SELECT id, incoming_idempotency_key, entity_type, entity_id, operation, conflict_type, reason_code, message,
			COALESCE(local_payload,''), COALESCE(remote_payload,''), COALESCE(base_payload,''), status,
			resolution_strategy, COALESCE(resolution_payload,''), resolved_by_device, detected_at, resolved_at
		FROM conflicts WHERE id = ?
	`, id)
	return scanConflict(row)
}

// GetConflictByIdempotencyKey returns the conflict keyed by an incoming
// change's idempotency key, or nil if none exists.
func (s *Store) GetConflictByIdempotencyKey(key string) (*Conflict, error) {
	row := s.conn.QueryRow(`
		SELECT id, incoming_idempotency_key, entity_type, entity_id, operation, conflict_type, reason_code, message,
			COALESCE(local_payload,''), COALESCE(remote_payload,''), COALESCE(base_payload,''), status,
			resolution_strategy, COALESCE(resolution_payload,''), resolved_by_device, detected_at, resolved_at
		FROM conflicts WHERE incoming_idempotency_key = ?
	`, key)
	c, err := scanConflict(row)
	if Is(err, KindNotFound) {
		return nil, nil
	}
	return c, err
}

// ListConflicts returns conflicts ordered open first, then resolved, then
// ignored; within a group, most-recent detected_at first (spec §4.5).
func (s *Store) ListConflicts(status ConflictStatus, limit int) ([]*Conflict, error) {
	where := ""
	var args []any
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, string(status))
	}
	limitSQL := ""
	if limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(`
		SELECT id, incoming_idempotency_key, entity_type, entity_id, operation, conflict_type, reason_code, message,
			COALESCE(local_payload,''), COALESCE(remote_payload,''), COALESCE(base_payload,''), status,
			resolution_strategy, COALESCE(resolution_payload,''), resolved_by_device, detected_at, resolved_at
		FROM conflicts`+where+`
		ORDER BY CASE status WHEN 'open' THEN 0 WHEN 'resolved' THEN 1 ELSE 2 END, detected_at DESC`+limitSQL, args...)
	if err != nil {
		return nil, IO("list conflicts", err)
	}
	defer rows.Close()

	var out []*Conflict
	for rows.Next() {
		c, err := scanConflictRows(rows)
		if err != nil {
			return nil, IO("scan conflict", err)
		}
		out = append(out, c)
	}
	return out, IO("list conflicts", rows.Err())
}

// InsertConflictEvent appends an audit event within the caller's transaction.
func (s *Store) InsertConflictEvent(tx *sql.Tx, e *ConflictEvent) error {
	_, err := tx.Exec(`
		INSERT INTO conflict_events (conflict_id, event_type, event_payload, created_at)
		VALUES (?, ?, ?, ?)
	`, e.ConflictID, string(e.EventType), nullableString(e.EventPayload), e.CreatedAt)
	if err != nil {
		return IO("insert conflict event", err)
	}
	return nil
}

// ListConflictEvents returns up to limit events for a conflict, oldest first.
func (s *Store) ListConflictEvents(conflictID string, limit int) ([]*ConflictEvent, error) {
	limitSQL := ""
	args := []any{conflictID}
	if limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.conn.Query(`
		SELECT id, conflict_id, event_type, COALESCE(event_payload,''), created_at
		FROM conflict_events WHERE conflict_id = ? ORDER BY created_at ASC`+limitSQL, args...)
	if err != nil {
		return nil, IO("list conflict events", err)
	}
	defer rows.Close()

	var out []*ConflictEvent
	for rows.Next() {
		var e ConflictEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.ConflictID, &eventType, &e.EventPayload, &e.CreatedAt); err != nil {
			return nil, IO("scan conflict event", err)
		}
		e.EventType = ConflictEventType(eventType)
		out = append(out, &e)
	}
	return out, IO("list conflict events", rows.Err())
}

// CountConflictEvents returns how many events a conflict has accrued, used
// to enforce the per-conflict retention cap (spec §4.5: 200 events).
func (s *Store) CountConflictEvents(conflictID string) (int, error) {
	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM conflict_events WHERE conflict_id = ?`, conflictID).Scan(&count); err != nil {
		return 0, IO("count conflict events", err)
	}
	return count, nil
}

// PruneOldestConflictEvents deletes the oldest events for a conflict beyond
// keep, enforcing the per-conflict retention cap.
func (s *Store) PruneOldestConflictEvents(tx *sql.Tx, conflictID string, keep int) error {
	_, err := tx.Exec(`
		DELETE FROM conflict_events WHERE conflict_id = ? AND id NOT IN (
			SELECT id FROM conflict_events WHERE conflict_id = ? ORDER BY created_at DESC LIMIT ?
		)
	`, conflictID, conflictID, keep)
	if err != nil {
		return IO("prune conflict events", err)
	}
	return nil
}

// PruneConflictEventsOlderThan deletes events older than cutoff globally,
// enforcing the 90-day retention window (spec §4.5).
func (s *Store) PruneConflictEventsOlderThan(tx *sql.Tx, cutoff time.Time) error {
	if _, err := tx.Exec(`DELETE FROM conflict_events WHERE created_at < ?`, cutoff); err != nil {
		return IO("prune old conflict events", err)
	}
	return nil
}

func scanConflict(row *sql.Row) (*Conflict, error) {
	var c Conflict
	var entityType, operation, status string
	var resolvedAt sql.NullTime
	err := row.Scan(&c.ID, &c.IncomingIdempotencyKey, &entityType, &c.EntityID, &operation, &c.ConflictType,
		&c.ReasonCode, &c.Message, &c.LocalPayload, &c.RemotePayload, &c.BasePayload, &status,
		&c.ResolutionStrategy, &c.ResolutionPayload, &c.ResolvedByDevice, &c.DetectedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("conflict", sql.ErrNoRows)
	}
	if err != nil {
		return nil, IO("get conflict", err)
	}
	applyConflictScan(&c, entityType, operation, status, resolvedAt)
	return &c, nil
}

func scanConflictRows(rows *sql.Rows) (*Conflict, error) {
	var c Conflict
	var entityType, operation, status string
	var resolvedAt sql.NullTime
	if err := rows.Scan(&c.ID, &c.IncomingIdempotencyKey, &entityType, &c.EntityID, &operation, &c.ConflictType,
		&c.ReasonCode, &c.Message, &c.LocalPayload, &c.RemotePayload, &c.BasePayload, &status,
		&c.ResolutionStrategy, &c.ResolutionPayload, &c.ResolvedByDevice, &c.DetectedAt, &resolvedAt); err != nil {
		return nil, err
	}
	applyConflictScan(&c, entityType, operation, status, resolvedAt)
	return &c, nil
}

func applyConflictScan(c *Conflict, entityType, operation, status string, resolvedAt sql.NullTime) {
	c.EntityType = model.EntityType(entityType)
	c.Operation = model.Operation(operation)
	c.Status = ConflictStatus(status)
	if resolvedAt.Valid {
		v := resolvedAt.Time
		c.ResolvedAt = &v
	}
}
