// Package conflict is the Conflict Store (C5): persistence of conflict
// records and their audit-event stream, resolve/retry/ignore transitions
// and report export. Grounded on the teacher's internal/sync/client.go
// ConflictRecord/localModifiedSinceSync shape, generalized from the
// teacher's single "overwrite" conflict kind to this package's closed set
// of reason codes, and on internal/db/sync_history.go for the
// event-retention pattern.
package conflict

import (
	"time"

	"github.com/tdsync/core/internal/store"
)

// ReasonCode is the closed set of conflict reasons spec §4.4.5 names.
type ReasonCode string

const (
	ReasonMissingProjectName  ReasonCode = "MISSING_PROJECT_NAME"
	ReasonMissingTaskTitle    ReasonCode = "MISSING_TASK_TITLE"
	ReasonMissingTemplateName ReasonCode = "MISSING_TEMPLATE_NAME"
	ReasonInvalidSubtask      ReasonCode = "INVALID_SUBTASK_PAYLOAD"
	ReasonTaskProjectNotFound ReasonCode = "TASK_PROJECT_NOT_FOUND"
	ReasonSubtaskTaskNotFound ReasonCode = "SUBTASK_TASK_NOT_FOUND"
	ReasonTaskNotesCollision  ReasonCode = "TASK_NOTES_COLLISION"
)

// Conflict "types" group reason codes for reporting; field_conflict covers
// the validation-failure reasons, notes_collision the concurrent-edit one.
const (
	TypeFieldConflict  = "field_conflict"
	TypeNotesCollision = "notes_collision"
)

// TypeOf returns the conflict_type bucket for a reason code.
func TypeOf(reason ReasonCode) string {
	if reason == ReasonTaskNotesCollision {
		return TypeNotesCollision
	}
	return TypeFieldConflict
}

// Strategy is the closed set of resolution strategies spec §4.5 names.
type Strategy string

const (
	StrategyKeepLocal    Strategy = "keep_local"
	StrategyKeepRemote   Strategy = "keep_remote"
	StrategyManualMerge  Strategy = "manual_merge"
	StrategyRetry        Strategy = "retry"
)

// Classification is the outcome of the Sync Engine's validation-conflict
// checks (spec §4.4.5 point 3), carried into RecordConflict.
type Classification struct {
	Reason  ReasonCode
	Message string
}

// Store wraps the durable Store with the device identity and clock/id
// sources the conflict lifecycle needs, plus an optional webhook notifier.
type Store struct {
	db       *store.Store
	DeviceID string
	Clock    func() time.Time
	NewID    func() string
	Notifier *Notifier
}

// New builds a conflict Store with the real wall clock and a random id
// source.
func New(s *store.Store, deviceID string) *Store {
	return &Store{db: s, DeviceID: deviceID, Clock: time.Now, NewID: store.NewID}
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Store) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return store.NewID()
}
