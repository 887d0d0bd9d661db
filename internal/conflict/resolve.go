package conflict

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
)

// resolutionSettingPrefix is the reserved namespace for conflict-resolution
// settings. Unlike model.LocalSettingPrefix these ARE synced: spec §4.5
// requires an outbox UPSERT for every resolution so peers observe that a
// human acted. See DESIGN.md for why this differs from the local-only rule.
const resolutionSettingPrefix = "conflict_resolution."

func resolutionSettingKey(conflictID string) string {
	return resolutionSettingPrefix + conflictID
}

// Resolve transitions a conflict per spec §4.5. manual_merge requires a
// non-empty JSON object resolutionPayload; retry leaves the conflict open,
// every other strategy moves it to resolved. Every call writes a
// resolution setting and journals a matching outbox UPSERT, keyed by a
// deterministic idempotency key of device_id+conflict_id+strategy so
// retried resolve calls do not fan out duplicate pushes.
func (s *Store) Resolve(conflictID string, strategy Strategy, resolutionPayload string, resolvedByDevice string) (*store.Conflict, error) {
	if strategy == StrategyManualMerge && !isNonEmptyJSONObject(resolutionPayload) {
		return nil, model.ErrManualMergePayloadRequired
	}

	c, err := s.db.GetConflict(conflictID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c.ResolutionStrategy = string(strategy)
	c.ResolutionPayload = resolutionPayload
	c.ResolvedByDevice = resolvedByDevice

	eventType := store.EventResolved
	if strategy == StrategyRetry {
		eventType = store.EventRetried
	} else {
		c.Status = store.ConflictResolved
		t := now
		c.ResolvedAt = &t
	}

	err = s.db.Mutate(func(tx *sql.Tx) error {
		if err := s.db.UpdateConflict(tx, c); err != nil {
			return err
		}
		if err := s.appendEvent(tx, c.ID, eventType, map[string]any{"strategy": strategy}, now); err != nil {
			return err
		}
		return s.journalResolution(tx, c, strategy, now)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Ignore moves a conflict to the terminal ignored state without attempting
// a merge (spec §3.2's ignored status; resolve's strategy set has no
// direct ignore verb, so this is the status's only producer).
func (s *Store) Ignore(conflictID, resolvedByDevice string) (*store.Conflict, error) {
	c, err := s.db.GetConflict(conflictID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	c.Status = store.ConflictIgnored
	c.ResolvedByDevice = resolvedByDevice
	t := now
	c.ResolvedAt = &t

	err = s.db.Mutate(func(tx *sql.Tx) error {
		if err := s.db.UpdateConflict(tx, c); err != nil {
			return err
		}
		return s.appendEvent(tx, c.ID, store.EventIgnored, nil, now)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AutoResolveByRetry transitions an open conflict to resolved with strategy
// retry when a later incoming change carrying the same idempotency key
// applies successfully (spec §4.4.5 point 5). Unlike Resolve's retry
// strategy (which deliberately leaves the conflict open for a human), this
// is the Sync Engine observing that the peer already fixed the problem.
func (s *Store) AutoResolveByRetry(conflictID, resolvedByDevice string) (*store.Conflict, error) {
	c, err := s.db.GetConflict(conflictID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	c.Status = store.ConflictResolved
	c.ResolutionStrategy = string(StrategyRetry)
	c.ResolvedByDevice = resolvedByDevice
	t := now
	c.ResolvedAt = &t

	err = s.db.Mutate(func(tx *sql.Tx) error {
		if err := s.db.UpdateConflict(tx, c); err != nil {
			return err
		}
		if err := s.appendEvent(tx, c.ID, store.EventResolved, map[string]any{"strategy": StrategyRetry, "auto": true}, now); err != nil {
			return err
		}
		return s.journalResolution(tx, c, StrategyRetry, now)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// journalResolution writes the resolution setting and its matching outbox
// row, inside the caller's transaction, keyed by a deterministic
// idempotency key of device_id+conflict_id+strategy (spec §4.5).
func (s *Store) journalResolution(tx *sql.Tx, c *store.Conflict, strategy Strategy, now time.Time) error {
	key := resolutionSettingKey(c.ID)
	payload := map[string]any{
		"conflict_id":       c.ID,
		"strategy":          strategy,
		"payload":           json.RawMessage(nullToEmptyObject(c.ResolutionPayload)),
		"updated_at":        now.UTC().Format(time.RFC3339),
		"updated_by_device": s.DeviceID,
		"sync_version":      1,
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := s.db.UpsertSetting(tx, key, string(value), now, s.DeviceID, 1); err != nil {
		return err
	}

	idempotencyKey := store.DeterministicID("ikc_", s.DeviceID+"|"+c.ID+"|"+string(strategy))
	_, err = s.db.InsertOutbox(tx, &store.OutboxEntry{
		EntityType:     model.EntitySetting,
		EntityID:       key,
		Operation:      model.OpUpsert,
		PayloadJSON:    string(value),
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
	})
	if err != nil && !store.Is(err, store.KindConstraintViolation) {
		return err
	}
	return nil
}

func isNonEmptyJSONObject(raw string) bool {
	if raw == "" {
		return false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return false
	}
	m, ok := v.(map[string]any)
	return ok && len(m) > 0
}

func nullToEmptyObject(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}
