package syncengine

import (
	"database/sql"
	"errors"
	"time"
)

// ErrServerCursorRequired is returned when advance_cursor is asked to
// persist an empty cursor (spec §4.4.4).
var ErrServerCursorRequired = errors.New("SERVER_CURSOR_REQUIRED")

// AdvanceCursor writes the checkpoint atomically. serverTime is used when
// parseable as RFC3339; otherwise the engine's own clock supplies "now"
// (spec §4.4.4). The checkpoint only ever moves forward (spec invariant 6,
// P4) — callers must not invoke this unless the response was durably
// applied first.
func (e *Engine) AdvanceCursor(serverCursor, serverTime string) error {
	if serverCursor == "" {
		return ErrServerCursorRequired
	}
	syncedAt, err := time.Parse(time.RFC3339, serverTime)
	if err != nil {
		syncedAt = e.now()
	}
	return e.Store.Mutate(func(tx *sql.Tx) error {
		return e.Store.SetCheckpoint(tx, serverCursor, syncedAt)
	})
}
