// Package synctest is an end-to-end integration harness: two local stores,
// each with its own Mutation API and Sync Runner, synchronizing through one
// fakeserver.Server over real HTTP via internal/transport. Grounded on the
// teacher's test/ (top-level integration) convention of exercising the full
// stack against a real, if disposable, server rather than mocks.
package synctest

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tdsync/core/internal/conflict"
	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/mutation"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/syncrunner"
	"github.com/tdsync/core/internal/transport"
	"github.com/tdsync/core/internal/wire"
	"github.com/tdsync/core/test/fakeserver"
)

type device struct {
	Store     *store.Store
	Mutator   *mutation.Mutator
	Conflicts *conflict.Store
	Runner    *syncrunner.Runner
}

func newDevice(t *testing.T, id string) *device {
	t.Helper()
	s, err := store.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &device{
		Store:     s,
		Mutator:   mutation.New(s, id),
		Conflicts: conflict.New(s, id),
		Runner:    syncrunner.New(s, id),
	}
}

func newHarness(t *testing.T) (*fakeserver.Server, *transport.HTTPTransport) {
	t.Helper()
	fs, err := fakeserver.New(":memory:")
	if err != nil {
		t.Fatalf("fakeserver.New: %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	httpSrv := httptest.NewServer(fs.Handler())
	t.Cleanup(httpSrv.Close)

	tr := transport.New(httpSrv.URL+"/push", httpSrv.URL+"/pull", nil)
	return fs, tr
}

func syncOnce(t *testing.T, d *device, tr *transport.HTTPTransport) *syncrunner.CycleSummary {
	t.Helper()
	summary, err := d.Runner.RunCycle(context.Background(), tr, syncrunner.Options{
		PushLimit: 200, PullLimit: 200, MaxPullPages: 5,
	})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return summary
}

// TestTwoDevicesConvergeOnSharedProject covers the core offline-then-online
// scenario: device A creates a project while offline, syncs; device B pulls
// it down.
func TestTwoDevicesConvergeOnSharedProject(t *testing.T) {
	_, tr := newHarness(t)
	a := newDevice(t, "A")
	b := newDevice(t, "B")

	if _, err := a.Mutator.CreateProject(mutation.CreateProjectInput{Name: "Launch"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	syncOnce(t, a, tr)
	syncOnce(t, b, tr)

	projects, err := b.Store.ListProjects(store.Predicate{})
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "Launch" {
		t.Fatalf("projects on B = %+v", projects)
	}
}

// TestSelfEchoIsNeverReapplied covers P6: a device's own changes, once
// pulled back, must not be reapplied (and so must not duplicate outbox
// activity or bump sync versions again).
func TestSelfEchoIsNeverReapplied(t *testing.T) {
	_, tr := newHarness(t)
	a := newDevice(t, "A")

	p, err := a.Mutator.CreateProject(mutation.CreateProjectInput{Name: "Solo"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	syncOnce(t, a, tr) // push; the push response moves A's cursor past its own change
	summary := syncOnce(t, a, tr) // second cycle must not reapply it
	if summary.Pull.SkippedSelf == 0 && summary.Pull.Applied != 0 {
		t.Errorf("expected A's own change to be skipped, got applied=%d skippedSelf=%d", summary.Pull.Applied, summary.Pull.SkippedSelf)
	}

	got, err := a.Store.GetProject(p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.SyncVersion != 1 {
		t.Errorf("SyncVersion = %d, want 1 (self-echo must not bump it)", got.SyncVersion)
	}
}

// TestConcurrentEditsOlderChangeIsANoOp covers P3: applying an older
// incoming change after a newer local one must leave the newer value in
// place.
func TestConcurrentEditsOlderChangeIsANoOp(t *testing.T) {
	_, tr := newHarness(t)
	a := newDevice(t, "A")
	b := newDevice(t, "B")

	p, err := a.Mutator.CreateProject(mutation.CreateProjectInput{Name: "Original"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	syncOnce(t, a, tr)
	syncOnce(t, b, tr)

	// B edits first (older), A edits second (newer), both sync; A's edit
	// must win regardless of sync order.
	if _, err := b.Mutator.UpdateProject(mutation.UpdateProjectInput{ID: p.ID, Name: "From B", Status: model.ProjectActive}); err != nil {
		t.Fatalf("UpdateProject(B): %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := a.Mutator.UpdateProject(mutation.UpdateProjectInput{ID: p.ID, Name: "From A", Status: model.ProjectActive}); err != nil {
		t.Fatalf("UpdateProject(A): %v", err)
	}

	syncOnce(t, b, tr) // B pushes its older edit first
	syncOnce(t, a, tr) // A pushes its newer edit
	syncOnce(t, b, tr) // B pulls A's newer edit

	got, err := b.Store.GetProject(p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != "From A" {
		t.Errorf("Name = %q, want %q (LWW must keep the newer write)", got.Name, "From A")
	}
}

// TestValidationConflictIsRecordedAndReported covers P8: a malformed
// incoming change (missing the required project name) is recorded as a
// conflict with exactly one detected event, not silently dropped or
// applied.
func TestValidationConflictIsRecordedAndReported(t *testing.T) {
	_, tr := newHarness(t)
	a := newDevice(t, "A")

	// Seed the remote directly with a malformed PROJECT upsert as if another
	// device had pushed one, bypassing A's own Mutation API validation (which
	// would never produce such a payload).
	seedMalformedProject(t, tr, "bad-1")

	summary := syncOnce(t, a, tr)
	if summary.Pull.Conflicts != 1 {
		t.Fatalf("Pull.Conflicts = %d, want 1", summary.Pull.Conflicts)
	}

	conflicts, err := a.Conflicts.ListConflicts(store.ConflictOpen, 10)
	if err != nil {
		t.Fatalf("ListConflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("len(conflicts) = %d, want 1", len(conflicts))
	}

	events, err := a.Conflicts.Events(conflicts[0].ID, 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	detected := 0
	for _, e := range events {
		if e.EventType == store.EventDetected {
			detected++
		}
	}
	if detected != 1 {
		t.Errorf("detected events = %d, want 1", detected)
	}
}

func seedMalformedProject(t *testing.T, tr *transport.HTTPTransport, key string) {
	t.Helper()
	req := &wire.PushRequest{
		SchemaVersion: wire.SchemaVersion,
		DeviceID:      "SEED",
		Changes: []wire.SyncChange{
			{
				EntityType: string(model.EntityProject), EntityID: "bad-1", Operation: string(model.OpUpsert),
				UpdatedAt: "2026-01-01T00:00:00Z", UpdatedByDevice: "SEED", SyncVersion: 1,
				Payload: json.RawMessage(`{"name":""}`), IdempotencyKey: key,
			},
		},
	}
	if _, err := tr.Push(context.Background(), req); err != nil {
		t.Fatalf("seed push: %v", err)
	}
}
