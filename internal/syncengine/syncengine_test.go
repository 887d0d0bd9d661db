package syncengine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tdsync/core/internal/conflict"
	"github.com/tdsync/core/internal/mutation"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/wire"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPreparePushSortsAndAssignsIdempotencyKeys(t *testing.T) {
	s := newTestStore(t)
	m := mutation.New(s, "D1")

	if _, err := m.CreateProject(mutation.CreateProjectInput{Name: "Alpha"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	e := New(s, "D1")
	batch, err := e.PreparePush(nil, 50)
	if err != nil {
		t.Fatalf("PreparePush: %v", err)
	}
	if len(batch.Request.Changes) != 1 {
		t.Fatalf("len(Changes) = %d, want 1", len(batch.Request.Changes))
	}
	if batch.Request.Changes[0].EntityType != "PROJECT" {
		t.Errorf("EntityType = %q, want PROJECT", batch.Request.Changes[0].EntityType)
	}
	if batch.Request.Changes[0].IdempotencyKey == "" {
		t.Error("IdempotencyKey empty")
	}
	if len(batch.Pending) != 1 || batch.Pending[0].IdempotencyKey != batch.Request.Changes[0].IdempotencyKey {
		t.Errorf("Pending does not mirror the change's idempotency key")
	}
}

func TestAcknowledgePushRemovesAcceptedMarksRejected(t *testing.T) {
	s := newTestStore(t)
	m := mutation.New(s, "D1")
	p1, _ := m.CreateProject(mutation.CreateProjectInput{Name: "Alpha"})
	p2, _ := m.CreateProject(mutation.CreateProjectInput{Name: "Beta"})
	_ = p2

	e := New(s, "D1")
	batch, err := e.PreparePush(nil, 50)
	if err != nil {
		t.Fatalf("PreparePush: %v", err)
	}
	if len(batch.Pending) != 2 {
		t.Fatalf("len(Pending) = %d, want 2", len(batch.Pending))
	}

	var acceptedKey, rejectedKey string
	for _, c := range batch.Request.Changes {
		if c.EntityID == p1.ID {
			acceptedKey = c.IdempotencyKey
		} else {
			rejectedKey = c.IdempotencyKey
		}
	}

	resp := &wire.PushResponse{
		Accepted:     []string{acceptedKey},
		Rejected:     []wire.Rejection{{IdempotencyKey: rejectedKey, Reason: wire.RejectConflict, Message: "boom"}},
		ServerCursor: "c1",
		ServerTime:   time.Now().UTC().Format(time.RFC3339),
	}

	summary, err := e.AcknowledgePush(batch.Pending, resp)
	if err != nil {
		t.Fatalf("AcknowledgePush: %v", err)
	}
	if len(summary.RemovedIDs) != 1 {
		t.Errorf("RemovedIDs = %v, want 1 entry", summary.RemovedIDs)
	}
	if len(summary.FailedIDs) != 1 {
		t.Errorf("FailedIDs = %v, want 1 entry", summary.FailedIDs)
	}

	remaining, err := s.ListOutbox(0)
	if err != nil {
		t.Fatalf("ListOutbox: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("len(remaining outbox) = %d, want 1", len(remaining))
	}
	if remaining[0].Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", remaining[0].Attempts)
	}
}

func TestAdvanceCursorRequiresNonEmptyCursor(t *testing.T) {
	s := newTestStore(t)
	e := New(s, "D1")
	if err := e.AdvanceCursor("", ""); err != ErrServerCursorRequired {
		t.Fatalf("AdvanceCursor(\"\") err = %v, want ErrServerCursorRequired", err)
	}
	if err := e.AdvanceCursor("c1", "not-a-time"); err != nil {
		t.Fatalf("AdvanceCursor: %v", err)
	}
	cp, err := s.GetCheckpoint()
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if cp.LastSyncCursor != "c1" {
		t.Errorf("LastSyncCursor = %q, want c1", cp.LastSyncCursor)
	}
}

func upsertChange(entityType, id, payload, updatedAt, device string) wire.SyncChange {
	return wire.SyncChange{
		EntityType:      entityType,
		EntityID:        id,
		Operation:       "UPSERT",
		UpdatedAt:       updatedAt,
		UpdatedByDevice: device,
		SyncVersion:     1,
		Payload:         json.RawMessage(payload),
		IdempotencyKey:  "k-" + id,
	}
}

func TestApplyPullSkipsSelfEcho(t *testing.T) {
	s := newTestStore(t)
	e := New(s, "D1")
	cs := conflict.New(s, "D1")

	resp := &wire.PullResponse{
		ServerCursor: "c1",
		ServerTime:   time.Now().UTC().Format(time.RFC3339),
		Changes: []wire.SyncChange{
			upsertChange("PROJECT", "p1", `{"name":"Alpha"}`, "2026-01-01T00:00:00Z", "D1"),
		},
	}
	summary, err := e.ApplyPull(resp, cs)
	if err != nil {
		t.Fatalf("ApplyPull: %v", err)
	}
	if summary.SkippedSelf != 1 {
		t.Errorf("SkippedSelf = %d, want 1", summary.SkippedSelf)
	}
	if summary.Applied != 0 {
		t.Errorf("Applied = %d, want 0", summary.Applied)
	}
	if _, err := s.GetProject("p1"); !store.Is(err, store.KindNotFound) {
		t.Errorf("project p1 should not exist, err = %v", err)
	}
}

func TestApplyPullMissingTaskTitleYieldsConflict(t *testing.T) {
	s := newTestStore(t)
	e := New(s, "D1")
	cs := conflict.New(s, "D1")

	resp := &wire.PullResponse{
		ServerCursor: "c1",
		ServerTime:   time.Now().UTC().Format(time.RFC3339),
		Changes: []wire.SyncChange{
			{
				EntityType: "TASK", EntityID: "t9", Operation: "UPSERT",
				UpdatedAt: "2026-01-01T00:00:00Z", UpdatedByDevice: "D2", SyncVersion: 1,
				Payload: json.RawMessage(`{}`), IdempotencyKey: "k-9",
			},
		},
	}
	summary, err := e.ApplyPull(resp, cs)
	if err != nil {
		t.Fatalf("ApplyPull: %v", err)
	}
	if summary.Conflicts != 1 {
		t.Fatalf("Conflicts = %d, want 1", summary.Conflicts)
	}
	if summary.Envelopes[0].Reason != string(conflict.ReasonMissingTaskTitle) {
		t.Errorf("Reason = %q, want %s", summary.Envelopes[0].Reason, conflict.ReasonMissingTaskTitle)
	}
	if _, err := s.GetTask("t9"); !store.Is(err, store.KindNotFound) {
		t.Errorf("task t9 should not have been created, err = %v", err)
	}

	c, err := cs.FindByKey("k-9")
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if c == nil || c.Status != store.ConflictOpen {
		t.Fatalf("conflict not recorded as open: %+v", c)
	}

	// scenario 4: a corrected resend with the same idempotency key applies
	// and auto-resolves the conflict via retry.
	resp2 := &wire.PullResponse{
		ServerCursor: "c2",
		ServerTime:   time.Now().UTC().Format(time.RFC3339),
		Changes: []wire.SyncChange{
			{
				EntityType: "TASK", EntityID: "t9", Operation: "UPSERT",
				UpdatedAt: "2026-01-01T00:00:01Z", UpdatedByDevice: "D2", SyncVersion: 1,
				Payload: json.RawMessage(`{"title":"Fixed title"}`), IdempotencyKey: "k-9",
			},
		},
	}
	summary2, err := e.ApplyPull(resp2, cs)
	if err != nil {
		t.Fatalf("ApplyPull (resend): %v", err)
	}
	if summary2.Applied != 1 {
		t.Fatalf("Applied = %d, want 1", summary2.Applied)
	}
	task, err := s.GetTask("t9")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Title != "Fixed title" {
		t.Errorf("Title = %q, want Fixed title", task.Title)
	}

	c2, err := cs.FindByKey("k-9")
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if c2.Status != store.ConflictResolved || c2.ResolutionStrategy != "retry" {
		t.Errorf("conflict not auto-resolved by retry: %+v", c2)
	}
}

func TestApplyPullLWWTieBreakByDeviceID(t *testing.T) {
	s := newTestStore(t)
	e := New(s, "D1")
	cs := conflict.New(s, "D1")

	// Seed an existing row last written by device "ZZ".
	resp := &wire.PullResponse{
		ServerCursor: "c1", ServerTime: time.Now().UTC().Format(time.RFC3339),
		Changes: []wire.SyncChange{
			upsertChange("PROJECT", "p1", `{"name":"From ZZ"}`, "2026-01-01T00:00:00Z", "ZZ"),
		},
	}
	if _, err := e.ApplyPull(resp, cs); err != nil {
		t.Fatalf("seed ApplyPull: %v", err)
	}

	// Same timestamp, device "AA" sorts lower than "ZZ" lexicographically:
	// the incoming write must be skipped.
	resp2 := &wire.PullResponse{
		ServerCursor: "c2", ServerTime: time.Now().UTC().Format(time.RFC3339),
		Changes: []wire.SyncChange{
			upsertChange("PROJECT", "p1", `{"name":"From AA"}`, "2026-01-01T00:00:00Z", "AA"),
		},
	}
	summary, err := e.ApplyPull(resp2, cs)
	if err != nil {
		t.Fatalf("ApplyPull: %v", err)
	}
	if summary.Skipped != 1 {
		t.Fatalf("Skipped = %d, want 1", summary.Skipped)
	}
	p, err := s.GetProject("p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.Name != "From ZZ" {
		t.Errorf("Name = %q, want From ZZ (AA must not win a tie)", p.Name)
	}
}
