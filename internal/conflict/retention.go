package conflict

import (
	"database/sql"
	"time"
)

// maxEventsPerConflict and maxEventAge enforce spec §4.5's retention caps:
// per-conflict at most 200 events, globally nothing older than 90 days.
const (
	maxEventsPerConflict = 200
	maxEventAge          = 90 * 24 * time.Hour
)

// enforceRetention prunes this conflict's own event history past the
// per-conflict cap, then sweeps every conflict's events older than the
// global age cap. Called after every event insert (spec §4.5).
func (s *Store) enforceRetention(tx *sql.Tx, conflictID string) error {
	if err := s.db.PruneOldestConflictEvents(tx, conflictID, maxEventsPerConflict); err != nil {
		return err
	}
	return s.db.PruneConflictEventsOlderThan(tx, s.now().Add(-maxEventAge))
}
