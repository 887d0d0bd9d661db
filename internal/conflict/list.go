package conflict

import "github.com/tdsync/core/internal/store"

// ListConflicts returns conflicts open first, then resolved, then ignored;
// within a group, most recently detected first (spec §4.5). An empty
// status filters nothing.
func (s *Store) ListConflicts(status store.ConflictStatus, limit int) ([]*store.Conflict, error) {
	return s.db.ListConflicts(status, limit)
}

// Get returns a single conflict by id.
func (s *Store) Get(id string) (*store.Conflict, error) {
	return s.db.GetConflict(id)
}

// FindByKey returns the conflict keyed by an incoming change's idempotency
// key, or nil if none has been recorded.
func (s *Store) FindByKey(idempotencyKey string) (*store.Conflict, error) {
	return s.db.GetConflictByIdempotencyKey(idempotencyKey)
}

// Events returns up to limit audit events for a conflict, oldest first.
func (s *Store) Events(conflictID string, limit int) ([]*store.ConflictEvent, error) {
	return s.db.ListConflictEvents(conflictID, limit)
}
