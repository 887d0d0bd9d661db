package wire

import (
	"sort"

	"github.com/tdsync/core/internal/model"
)

// SortChanges orders changes deterministically per spec §4.3: ascending
// updated_at (lexicographic on the ISO string), then ascending entity-type
// priority (parents before children), then ascending idempotency_key.
// Grounded on the teacher's GetEventsSince ORDER BY server_seq ASC
// determinism, generalized to a three-key sort since this wire format has
// no server-assigned sequence number to lean on.
func SortChanges(changes []SyncChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt < b.UpdatedAt
		}
		pa, pb := model.SyncPriority(model.EntityType(a.EntityType)), model.SyncPriority(model.EntityType(b.EntityType))
		if pa != pb {
			return pa < pb
		}
		return a.IdempotencyKey < b.IdempotencyKey
	})
}
