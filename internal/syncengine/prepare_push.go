package syncengine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/wire"
)

// SkipReason enumerates why an outbox row was left out of a prepared batch
// (spec §4.4.1).
type SkipReason string

const (
	SkipMissingEntityID    SkipReason = "MISSING_ENTITY_ID"
	SkipInvalidPayloadJSON SkipReason = "INVALID_PAYLOAD_JSON"
	SkipInvalidPayload     SkipReason = "INVALID_PAYLOAD"
)

// SkippedEntry records one outbox row prepare_push declined to include.
type SkippedEntry struct {
	OutboxID int64
	Reason   SkipReason
	Detail   string
}

// PendingChange pairs an included outbox row with the idempotency key it
// was sent under, so acknowledge_push can map a response back to rows.
type PendingChange struct {
	OutboxID       int64
	IdempotencyKey string
}

// PreparedBatch is prepare_push's result (spec §4.4.1).
type PreparedBatch struct {
	Request wire.PushRequest
	Pending []PendingChange
	Skipped []SkippedEntry
}

// PreparePush reads up to max outbox rows in creation order and builds a
// push request, skipping malformed rows per the documented reasons rather
// than failing the whole batch.
func (e *Engine) PreparePush(baseCursor *string, max int) (*PreparedBatch, error) {
	entries, err := e.Store.ListOutbox(max)
	if err != nil {
		return nil, err
	}

	batch := &PreparedBatch{}
	var changes []wire.SyncChange

	for _, entry := range entries {
		if entry.EntityID == "" {
			batch.Skipped = append(batch.Skipped, SkippedEntry{OutboxID: entry.ID, Reason: SkipMissingEntityID})
			continue
		}

		change, ok, skip := e.deriveSyncChange(entry)
		if !ok {
			batch.Skipped = append(batch.Skipped, skip)
			continue
		}

		changes = append(changes, change)
		batch.Pending = append(batch.Pending, PendingChange{OutboxID: entry.ID, IdempotencyKey: change.IdempotencyKey})
	}

	wire.SortChanges(changes)

	batch.Request = wire.PushRequest{
		SchemaVersion: wire.SchemaVersion,
		DeviceID:      e.DeviceID,
		BaseCursor:    baseCursor,
		Changes:       changes,
	}
	return batch, nil
}

// deriveSyncChange builds the wire.SyncChange for one outbox row, preferring
// payload-provided updated_at/updated_by_device/sync_version over the row's
// own fields (spec §4.4.1).
func (e *Engine) deriveSyncChange(entry *store.OutboxEntry) (wire.SyncChange, bool, SkippedEntry) {
	idempotencyKey := entry.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = store.IdempotencyKey(e.DeviceID, entry.ID)
	}

	change := wire.SyncChange{
		EntityType:      string(entry.EntityType),
		EntityID:        entry.EntityID,
		Operation:       string(entry.Operation),
		UpdatedAt:       entry.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedByDevice: e.DeviceID,
		SyncVersion:     1,
		IdempotencyKey:  idempotencyKey,
	}

	if entry.Operation == model.OpDelete {
		if strings.TrimSpace(entry.PayloadJSON) != "" && strings.TrimSpace(entry.PayloadJSON) != "null" {
			return wire.SyncChange{}, false, SkippedEntry{OutboxID: entry.ID, Reason: SkipInvalidPayload, Detail: "delete must not carry a payload"}
		}
		return change, true, SkippedEntry{}
	}

	if strings.TrimSpace(entry.PayloadJSON) == "" {
		return wire.SyncChange{}, false, SkippedEntry{OutboxID: entry.ID, Reason: SkipInvalidPayloadJSON, Detail: "upsert missing payload_json"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(entry.PayloadJSON), &fields); err != nil {
		return wire.SyncChange{}, false, SkippedEntry{OutboxID: entry.ID, Reason: SkipInvalidPayloadJSON, Detail: err.Error()}
	}

	change.Payload = json.RawMessage(entry.PayloadJSON)
	if raw, ok := fields["updated_at"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			change.UpdatedAt = s
		}
	}
	if raw, ok := fields["updated_by_device"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			change.UpdatedByDevice = s
		}
	}
	if raw, ok := fields["sync_version"]; ok {
		var v int
		if err := json.Unmarshal(raw, &v); err == nil && v > 0 {
			change.SyncVersion = v
		}
	}
	return change, true, SkippedEntry{}
}
