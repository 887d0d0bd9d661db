package termout

import (
	"strings"
	"testing"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/syncrunner"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name          string
		lastSummary   *syncrunner.CycleSummary
		cycleErr      error
		openConflicts int
		want          Status
	}{
		{"never synced", nil, nil, 0, StatusLocalOnly},
		{"open conflict wins over everything", &syncrunner.CycleSummary{}, nil, 1, StatusConflict},
		{"cycle error and no conflicts", &syncrunner.CycleSummary{}, errTest, 0, StatusOffline},
		{"pending outbox still syncing", &syncrunner.CycleSummary{PendingOutboxChanges: 3}, nil, 0, StatusSyncing},
		{"more pull pages still syncing", &syncrunner.CycleSummary{Pull: syncrunner.PullCycleSummary{HasMore: true}}, nil, 0, StatusSyncing},
		{"clean cycle is synced", &syncrunner.CycleSummary{}, nil, 0, StatusSynced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.lastSummary, tt.cycleErr, tt.openConflicts); got != tt.want {
				t.Errorf("DeriveStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

var errTest = &testError{}

type testError struct{}

func (e *testError) Error() string { return "boom" }

func TestFormatCycleSummaryIncludesCounts(t *testing.T) {
	s := &syncrunner.CycleSummary{
		RemovedOutboxChanges: 4,
		FailedOutboxChanges:  1,
		CheckpointAfter:      "42",
		Pull:                 syncrunner.PullCycleSummary{Applied: 2, Conflicts: 1},
	}
	out := FormatCycleSummary(s)
	for _, want := range []string{"pushed 4", "failed 1", "pulled 2", "conflicts 1", "cursor 42"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatCycleSummary() = %q, missing %q", out, want)
		}
	}
}

func TestFormatConflictIncludesIdentifyingFields(t *testing.T) {
	c := &store.Conflict{
		ID:         "cf1",
		EntityType: model.EntityProject,
		EntityID:   "p1",
		ReasonCode: "MISSING_PROJECT_NAME",
		Status:     store.ConflictOpen,
	}
	out := FormatConflict(c)
	for _, want := range []string{"cf1", "MISSING_PROJECT_NAME", "PROJECT", "p1", "open"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatConflict() = %q, missing %q", out, want)
		}
	}
}
