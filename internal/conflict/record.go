package conflict

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/wire"
)

// RecordConflict inserts or re-opens a conflict keyed by the incoming
// change's idempotency key and appends a detected event (spec §4.5). Per
// P8 ("exactly one detected event"), a detected event is only appended the
// first time this key is seen; a subsequent call against an already-open
// conflict for the same key only refreshes its payload snapshot. Callers
// must apply the repeat-receipt rule (spec §4.4.5) themselves before
// calling this for a key that already maps to a resolved/ignored conflict.
func (s *Store) RecordConflict(change wire.SyncChange, classification Classification, localPayload, remotePayload string) (*store.Conflict, error) {
	existing, err := s.db.GetConflictByIdempotencyKey(change.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var result *store.Conflict
	isNew := existing == nil

	err = s.db.Mutate(func(tx *sql.Tx) error {
		if existing == nil {
			c := &store.Conflict{
				ID:                     s.newID(),
				IncomingIdempotencyKey: change.IdempotencyKey,
				EntityType:             model.EntityType(change.EntityType),
				EntityID:               change.EntityID,
				Operation:              model.Operation(change.Operation),
				ConflictType:           TypeOf(classification.Reason),
				ReasonCode:             string(classification.Reason),
				Message:                classification.Message,
				LocalPayload:           localPayload,
				RemotePayload:          remotePayload,
				Status:                 store.ConflictOpen,
				DetectedAt:             now,
			}
			if err := s.db.InsertConflict(tx, c); err != nil {
				return err
			}
			if err := s.appendEvent(tx, c.ID, store.EventDetected, map[string]any{
				"reason_code": classification.Reason,
				"message":     classification.Message,
			}, now); err != nil {
				return err
			}
			result = c
			return nil
		}

		existing.Message = classification.Message
		existing.LocalPayload = localPayload
		existing.RemotePayload = remotePayload
		if err := s.db.UpdateConflict(tx, existing); err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	if isNew && s.Notifier != nil {
		s.Notifier.Notify(result)
	}
	return result, nil
}

// RecordRetried appends a retried event to an existing conflict without
// changing its status, satisfying the repeat-receipt rule: a change whose
// idempotency key already matches a resolved/ignored conflict is recorded
// as retried rather than re-raised.
func (s *Store) RecordRetried(conflictID string, payload map[string]any) error {
	now := s.now()
	return s.db.Mutate(func(tx *sql.Tx) error {
		return s.appendEvent(tx, conflictID, store.EventRetried, payload, now)
	})
}

func (s *Store) appendEvent(tx *sql.Tx, conflictID string, eventType store.ConflictEventType, payload map[string]any, now time.Time) error {
	var payloadJSON string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		payloadJSON = string(data)
	}
	if err := s.db.InsertConflictEvent(tx, &store.ConflictEvent{
		ConflictID:   conflictID,
		EventType:    eventType,
		EventPayload: payloadJSON,
		CreatedAt:    now,
	}); err != nil {
		return err
	}
	return s.enforceRetention(tx, conflictID)
}
