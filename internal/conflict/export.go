package conflict

import (
	"database/sql"
	"time"

	"github.com/tdsync/core/internal/store"
)

// Report is export_report's payload shape (spec §4.5).
type Report struct {
	Version       int             `json:"version"`
	ExportedAt    string          `json:"exported_at"`
	TotalConflict int             `json:"total_conflicts"`
	StatusFilter  string          `json:"status_filter"`
	Items         []ReportItem    `json:"items"`
}

// ReportItem pairs a conflict with its audit events.
type ReportItem struct {
	Conflict *store.Conflict       `json:"conflict"`
	Events   []*store.ConflictEvent `json:"events"`
}

// ExportReport returns a snapshot of conflicts (and their event history)
// matching status, and appends an exported event to every included
// conflict (spec §4.5).
func (s *Store) ExportReport(status store.ConflictStatus, limit, eventsPerConflict int) (*Report, error) {
	conflicts, err := s.db.ListConflicts(status, limit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &Report{
		Version:       1,
		ExportedAt:    now.UTC().Format(time.RFC3339),
		TotalConflict: len(conflicts),
		StatusFilter:  string(status),
	}

	for _, c := range conflicts {
		events, err := s.db.ListConflictEvents(c.ID, eventsPerConflict)
		if err != nil {
			return nil, err
		}
		report.Items = append(report.Items, ReportItem{Conflict: c, Events: events})

		if err := s.db.Mutate(func(tx *sql.Tx) error {
			return s.appendEvent(tx, c.ID, store.EventExported, nil, now)
		}); err != nil {
			return nil, err
		}
	}
	return report, nil
}
