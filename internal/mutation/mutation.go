// Package mutation is the Mutation API (C2): the only path by which a host
// changes local entities. Every operation validates its input, applies the
// domain write, stamps the sync-shadow fields, writes a tombstone on delete
// and inserts exactly one matching outbox row, all inside one Store
// transaction — grounded on the teacher's CreateIssueLogged/UpdateIssueLogged
// pattern of combining a domain write with an audit-log insert under a
// single withWriteLock call.
package mutation

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
)

// Mutator is the Mutation API. Clock and NewID are injected so tests can
// produce bit-exact outputs (spec §9 design notes).
type Mutator struct {
	Store    *store.Store
	DeviceID string
	Clock    func() time.Time
	NewID    func() string
}

// New builds a Mutator with the real wall clock and a random id source.
func New(s *store.Store, deviceID string) *Mutator {
	return &Mutator{
		Store:    s,
		DeviceID: deviceID,
		Clock:    time.Now,
		NewID:    store.NewID,
	}
}

func (m *Mutator) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *Mutator) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return store.NewID()
}

// insertOutbox inserts an outbox row for (entityType, entityID, op, payload)
// and rewrites its idempotency key from the row's own id, satisfying spec
// §4.2 rule 5 ("idempotency_key = hash(device_id, outbox_row_id)").
func (m *Mutator) insertOutbox(tx *sql.Tx, entityType model.EntityType, entityID string, op model.Operation, payload map[string]any, now time.Time, syncVersion int) error {
	var payloadJSON string
	if op == model.OpUpsert {
		payload["updated_at"] = now.UTC().Format(time.RFC3339)
		payload["updated_by_device"] = m.DeviceID
		payload["sync_version"] = syncVersion
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		payloadJSON = string(data)
	}

	id, err := m.Store.InsertOutbox(tx, &store.OutboxEntry{
		EntityType:     entityType,
		EntityID:       entityID,
		Operation:      op,
		PayloadJSON:    payloadJSON,
		IdempotencyKey: m.newID(),
		CreatedAt:      now,
	})
	if err != nil {
		return err
	}
	return m.Store.SetOutboxIdempotencyKey(tx, id, store.IdempotencyKey(m.DeviceID, id))
}

// changelog emits one local-only task_changelog row per changed field,
// grounded on the teacher's diffJSON ("only changed fields") approach in
// internal/sync/events.go, but scoped to a fixed set of task columns rather
// than a generic map diff, since the task row is a concrete Go struct here.
func (m *Mutator) changelog(tx *sql.Tx, taskID string, action model.ChangelogAction, field, oldValue, newValue string, now time.Time) error {
	if oldValue == newValue {
		return nil
	}
	return m.Store.InsertTaskChangelog(tx, &model.TaskChangelog{
		TaskID:    taskID,
		Action:    action,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		CreatedAt: now,
	})
}
