// Package syncengine is the Sync Engine (C4): push-batch preparation,
// push-response acknowledgement, pull application (LWW merge + conflict
// detection) and cursor advancement. Grounded on the teacher's
// internal/sync/engine.go and internal/sync/client.go, generalized from the
// teacher's server-side event log (InsertServerEvents/GetEventsSince) to
// this package's client-side outbox/inbox shape.
package syncengine

import (
	"time"

	"github.com/tdsync/core/internal/store"
)

// Engine wraps the Store with the device identity and injected clock the
// merge rules need. Clock is injected so tests produce bit-exact outputs
// (spec §9 design notes).
type Engine struct {
	Store    *store.Store
	DeviceID string
	Clock    func() time.Time
}

// New builds an Engine with the real wall clock.
func New(s *store.Store, deviceID string) *Engine {
	return &Engine{Store: s, DeviceID: deviceID, Clock: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}
