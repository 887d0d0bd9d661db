package store

import (
	"database/sql"
	"time"

	"github.com/tdsync/core/internal/model"
)

// OutboxEntry is one row of the durable outbox queue (spec §3.2). An entry
// is inserted atomically with every local mutation and removed once the
// server has acknowledged its idempotency_key.
type OutboxEntry struct {
	ID             int64
	EntityType     model.EntityType
	EntityID       string
	Operation      model.Operation
	PayloadJSON    string // empty for DELETE
	IdempotencyKey string
	Attempts       int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InsertOutbox appends one outbox row within the caller's transaction,
// satisfying invariant 2 ("every domain row update produces exactly one
// matching outbox entry within the same transaction").
func (s *Store) InsertOutbox(tx *sql.Tx, entry *OutboxEntry) (int64, error) {
	payload := sql.NullString{String: entry.PayloadJSON, Valid: entry.PayloadJSON != ""}
	res, err := tx.Exec(`
		INSERT INTO outbox (entity_type, entity_id, operation, payload_json, idempotency_key, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)
	`, string(entry.EntityType), entry.EntityID, string(entry.Operation), payload, entry.IdempotencyKey, entry.CreatedAt, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ConstraintViolation("idempotency key exists", ErrIdempotencyKeyExists)
		}
		return 0, IO("insert outbox", err)
	}
	return res.LastInsertId()
}

// SetOutboxIdempotencyKey rewrites a freshly inserted row's idempotency key
// once its row id is known, letting the Mutation API honor the
// device_id+outbox_row_id derivation from spec §4.2 without a chicken-and-egg
// insert. Callers that already have a caller-provided key never need this.
func (s *Store) SetOutboxIdempotencyKey(tx *sql.Tx, id int64, key string) error {
	_, err := tx.Exec(`UPDATE outbox SET idempotency_key = ? WHERE id = ?`, key, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ConstraintViolation("idempotency key exists", ErrIdempotencyKeyExists)
		}
		return IO("set outbox idempotency key", err)
	}
	return nil
}

// ListOutbox returns up to limit outbox rows in creation order (spec §5:
// "outbox rows are emitted in creation order").
func (s *Store) ListOutbox(limit int) ([]*OutboxEntry, error) {
	limitSQL := ""
	var args []any
	if limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.conn.Query(`
		SELECT id, entity_type, entity_id, operation, COALESCE(payload_json, ''), idempotency_key, attempts, last_error, created_at, updated_at
		FROM outbox ORDER BY created_at ASC, id ASC`+limitSQL, args...)
	if err != nil {
		return nil, IO("list outbox", err)
	}
	defer rows.Close()

	var out []*OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var entityType, operation string
		if err := rows.Scan(&e.ID, &entityType, &e.EntityID, &operation, &e.PayloadJSON, &e.IdempotencyKey,
			&e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, IO("scan outbox", err)
		}
		e.EntityType = model.EntityType(entityType)
		e.Operation = model.Operation(operation)
		out = append(out, &e)
	}
	return out, IO("list outbox", rows.Err())
}

// RemoveOutbox deletes the given outbox rows (accepted by the server).
func (s *Store) RemoveOutbox(tx *sql.Tx, ids []int64) error {
	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM outbox WHERE id = ?`, id); err != nil {
			return IO("remove outbox", err)
		}
	}
	return nil
}

// MarkOutboxFailed records a rejection reason on an outbox row and
// increments its attempt counter; the row stays in the outbox for a later
// retry cycle.
func (s *Store) MarkOutboxFailed(tx *sql.Tx, id int64, reason string, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE outbox SET last_error = ?, attempts = attempts + 1, updated_at = ? WHERE id = ?
	`, reason, now, id)
	if err != nil {
		return IO("mark outbox failed", err)
	}
	return nil
}

// CountOutbox returns the number of pending outbox rows.
func (s *Store) CountOutbox() (int, error) {
	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&count); err != nil {
		return 0, IO("count outbox", err)
	}
	return count, nil
}
