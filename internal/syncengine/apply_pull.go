package syncengine

import (
	"strings"

	"github.com/tdsync/core/internal/conflict"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/wire"
)

// ConflictEnvelope is one entry of PullSummary's conflict list, the shape
// spec §4.4.3 names for reporting back to a caller of apply_pull.
type ConflictEnvelope struct {
	IdempotencyKey string `json:"idempotency_key"`
	EntityType     string `json:"entity_type"`
	EntityID       string `json:"entity_id"`
	Reason         string `json:"reason,omitempty"`
}

// PullSummary is apply_pull's return value (spec §4.4.3 point 6).
type PullSummary struct {
	Applied     int
	Skipped     int
	Conflicts   int
	SkippedSelf int
	Failed      int
	Envelopes   []ConflictEnvelope
}

// ApplyPull runs one pull response through the deterministic sort, the
// idempotency-key dedup, self-echo suppression, the repeat-receipt rule and
// apply_change's LWW merge/conflict classification, in that order (spec
// §4.4.3 and §4.4.5). It never advances the checkpoint; callers do that via
// AdvanceCursor once the page has been processed.
func (e *Engine) ApplyPull(resp *wire.PullResponse, conflicts *conflict.Store) (*PullSummary, error) {
	summary := &PullSummary{}
	if resp == nil {
		return summary, nil
	}

	normalized := make([]wire.SyncChange, len(resp.Changes))
	for i, c := range resp.Changes {
		normalized[i] = c.Normalize()
	}
	wire.SortChanges(normalized)

	seen := make(map[string]bool, len(normalized))
	deduped := normalized[:0:0]
	for _, c := range normalized {
		if seen[c.IdempotencyKey] {
			continue
		}
		seen[c.IdempotencyKey] = true
		deduped = append(deduped, c)
	}

	for _, change := range deduped {
		if strings.EqualFold(change.UpdatedByDevice, e.DeviceID) {
			summary.SkippedSelf++
			continue
		}

		existing, err := conflicts.FindByKey(change.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil && (existing.Status == store.ConflictResolved || existing.Status == store.ConflictIgnored) {
			if err := conflicts.RecordRetried(existing.ID, map[string]any{"idempotency_key": change.IdempotencyKey}); err != nil {
				return nil, err
			}
			summary.Skipped++
			continue
		}

		result, err := e.applyChange(change)
		if err != nil {
			summary.Failed++
			continue
		}

		switch result.Outcome {
		case OutcomeApplied:
			summary.Applied++
			if existing != nil && existing.Status == store.ConflictOpen {
				if _, err := conflicts.AutoResolveByRetry(existing.ID, e.DeviceID); err != nil {
					return nil, err
				}
			}
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeConflict:
			summary.Conflicts++
			if _, err := conflicts.RecordConflict(change, conflict.Classification{
				Reason:  result.Reason,
				Message: result.Message,
			}, result.LocalPayload, string(change.Payload)); err != nil {
				return nil, err
			}
			summary.Envelopes = append(summary.Envelopes, ConflictEnvelope{
				IdempotencyKey: change.IdempotencyKey,
				EntityType:     change.EntityType,
				EntityID:       change.EntityID,
				Reason:         string(result.Reason),
			})
		}
	}
	return summary, nil
}
