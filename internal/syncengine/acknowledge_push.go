package syncengine

import (
	"database/sql"
	"fmt"

	"github.com/tdsync/core/internal/wire"
)

// PushSummary is acknowledge_push's result (spec §4.4.2).
type PushSummary struct {
	RemovedIDs []int64
	FailedIDs  []int64
	PendingIDs []int64
}

// AcknowledgePush removes outbox rows the server accepted, marks rejected
// ones failed (incrementing their attempt counter) and leaves rows the
// server neither accepted nor rejected pending for the next cycle.
func (e *Engine) AcknowledgePush(pending []PendingChange, resp *wire.PushResponse) (*PushSummary, error) {
	byKey := make(map[string]int64, len(pending))
	for _, p := range pending {
		byKey[p.IdempotencyKey] = p.OutboxID
	}

	accepted := make(map[string]bool, len(resp.Accepted))
	for _, key := range resp.Accepted {
		accepted[key] = true
	}
	rejected := make(map[string]wire.Rejection, len(resp.Rejected))
	for _, r := range resp.Rejected {
		rejected[r.IdempotencyKey] = r
	}

	summary := &PushSummary{}
	now := e.now()

	err := e.Store.Mutate(func(tx *sql.Tx) error {
		for key, id := range byKey {
			switch {
			case accepted[key]:
				if err := e.Store.RemoveOutbox(tx, []int64{id}); err != nil {
					return err
				}
				summary.RemovedIDs = append(summary.RemovedIDs, id)
			case rejected[key] != wire.Rejection{}:
				r := rejected[key]
				reason := fmt.Sprintf("[%s] %s", r.Reason, r.Message)
				if err := e.Store.MarkOutboxFailed(tx, id, reason, now); err != nil {
					return err
				}
				summary.FailedIDs = append(summary.FailedIDs, id)
			default:
				summary.PendingIDs = append(summary.PendingIDs, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
