package conflict

import (
	"sort"
	"time"

	"github.com/tdsync/core/internal/store"
)

// Stats is the derived observability snapshot spec §4.5 names.
type Stats struct {
	Total                  int
	Open                   int
	Resolved               int
	Ignored                int
	RetriedEvents          int
	ExportedEvents         int
	ResolutionRatePercent  float64
	MedianResolutionTimeMs int64
	LatestDetectedAt       *time.Time
	LatestResolvedAt       *time.Time
}

// Stats computes the observability counters over every conflict and its
// events. It is O(conflicts + events) and meant for dashboards/doctor
// output, not the hot sync path.
func (s *Store) Stats() (*Stats, error) {
	conflicts, err := s.db.ListConflicts("", 0)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(conflicts)}
	var resolutionDurations []time.Duration

	for _, c := range conflicts {
		switch c.Status {
		case store.ConflictOpen:
			stats.Open++
		case store.ConflictResolved:
			stats.Resolved++
		case store.ConflictIgnored:
			stats.Ignored++
		}
		if stats.LatestDetectedAt == nil || c.DetectedAt.After(*stats.LatestDetectedAt) {
			d := c.DetectedAt
			stats.LatestDetectedAt = &d
		}
		if c.ResolvedAt != nil {
			if stats.LatestResolvedAt == nil || c.ResolvedAt.After(*stats.LatestResolvedAt) {
				r := *c.ResolvedAt
				stats.LatestResolvedAt = &r
			}
			resolutionDurations = append(resolutionDurations, c.ResolvedAt.Sub(c.DetectedAt))
		}

		events, err := s.db.ListConflictEvents(c.ID, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			switch e.EventType {
			case store.EventRetried:
				stats.RetriedEvents++
			case store.EventExported:
				stats.ExportedEvents++
			}
		}
	}

	if stats.Total > 0 {
		stats.ResolutionRatePercent = float64(stats.Resolved+stats.Ignored) / float64(stats.Total) * 100
	}
	if len(resolutionDurations) > 0 {
		sort.Slice(resolutionDurations, func(i, j int) bool { return resolutionDurations[i] < resolutionDurations[j] })
		stats.MedianResolutionTimeMs = resolutionDurations[len(resolutionDurations)/2].Milliseconds()
	}
	return stats, nil
}
