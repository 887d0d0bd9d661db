package syncrunner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

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

// fakeTransport is a minimal in-memory stand-in for the Transport
// component, letting tests script exact push/pull responses without an
// HTTP round trip.
type fakeTransport struct {
	pushResp  *wire.PushResponse
	pushErr   error
	pullPages []*wire.PullResponse
	pullCalls int
}

func (f *fakeTransport) Push(ctx context.Context, req *wire.PushRequest) (*wire.PushResponse, error) {
	return f.pushResp, f.pushErr
}

func (f *fakeTransport) Pull(ctx context.Context, req *wire.PullRequest) (*wire.PullResponse, error) {
	if f.pullCalls >= len(f.pullPages) {
		return &wire.PullResponse{ServerCursor: "c-empty", ServerTime: time.Now().UTC().Format(time.RFC3339)}, nil
	}
	resp := f.pullPages[f.pullCalls]
	f.pullCalls++
	return resp, nil
}

func TestRunCycleOfflineThenOnlinePushAdvancesCheckpoint(t *testing.T) {
	s := newTestStore(t)
	m := mutation.New(s, "D1")
	if _, err := m.CreateProject(mutation.CreateProjectInput{Name: "Alpha"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	r := New(s, "D1")
	batch, err := r.Engine.PreparePush(nil, 50)
	if err != nil {
		t.Fatalf("PreparePush: %v", err)
	}
	key := batch.Request.Changes[0].IdempotencyKey

	transport := &fakeTransport{
		pushResp: &wire.PushResponse{Accepted: []string{key}, ServerCursor: "c1", ServerTime: time.Now().UTC().Format(time.RFC3339)},
		pullPages: []*wire.PullResponse{
			{ServerCursor: "c1", ServerTime: time.Now().UTC().Format(time.RFC3339), HasMore: false},
		},
	}

	summary, err := r.RunCycle(context.Background(), transport, Options{PushLimit: 50, PullLimit: 50, MaxPullPages: 5})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.PreparedPushChanges != 1 {
		t.Errorf("PreparedPushChanges = %d, want 1", summary.PreparedPushChanges)
	}
	if summary.RemovedOutboxChanges != 1 {
		t.Errorf("RemovedOutboxChanges = %d, want 1", summary.RemovedOutboxChanges)
	}
	if summary.CheckpointAfter != "c1" {
		t.Errorf("CheckpointAfter = %q, want c1", summary.CheckpointAfter)
	}

	remaining, err := s.ListOutbox(0)
	if err != nil {
		t.Fatalf("ListOutbox: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("len(remaining outbox) = %d, want 0", len(remaining))
	}
}

func TestRunCyclePaginatesPullUntilHasMoreFalse(t *testing.T) {
	s := newTestStore(t)
	r := New(s, "D1")

	page1 := &wire.PullResponse{
		ServerCursor: "c2", ServerTime: time.Now().UTC().Format(time.RFC3339), HasMore: true,
		Changes: []wire.SyncChange{
			{EntityType: "PROJECT", EntityID: "p1", Operation: "UPSERT", UpdatedAt: "2026-01-01T00:00:00Z",
				UpdatedByDevice: "D2", SyncVersion: 1, Payload: json.RawMessage(`{"name":"Alpha"}`), IdempotencyKey: "k1"},
		},
	}
	page2 := &wire.PullResponse{
		ServerCursor: "c3", ServerTime: time.Now().UTC().Format(time.RFC3339), HasMore: false,
		Changes: []wire.SyncChange{
			{EntityType: "PROJECT", EntityID: "p2", Operation: "UPSERT", UpdatedAt: "2026-01-01T00:00:01Z",
				UpdatedByDevice: "D2", SyncVersion: 1, Payload: json.RawMessage(`{"name":"Beta"}`), IdempotencyKey: "k2"},
		},
	}
	transport := &fakeTransport{pullPages: []*wire.PullResponse{page1, page2}}

	summary, err := r.RunCycle(context.Background(), transport, Options{PullLimit: 50, MaxPullPages: 5})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.CheckpointAfter != "c3" {
		t.Errorf("CheckpointAfter = %q, want c3", summary.CheckpointAfter)
	}
	if summary.Pull.Applied != 2 {
		t.Errorf("Pull.Applied = %d, want 2", summary.Pull.Applied)
	}
	if summary.Pull.HasMore {
		t.Error("Pull.HasMore = true, want false after the final page")
	}

	if _, err := s.GetProject("p1"); err != nil {
		t.Errorf("GetProject(p1): %v", err)
	}
	if _, err := s.GetProject("p2"); err != nil {
		t.Errorf("GetProject(p2): %v", err)
	}
}

func TestRunCycleSkipPullReturnsBeforePullPhase(t *testing.T) {
	s := newTestStore(t)
	r := New(s, "D1")
	transport := &fakeTransport{}

	summary, err := r.RunCycle(context.Background(), transport, Options{SkipPull: true})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if transport.pullCalls != 0 {
		t.Errorf("pullCalls = %d, want 0 with SkipPull", transport.pullCalls)
	}
	if summary.Pull.Applied != 0 {
		t.Errorf("Pull.Applied = %d, want 0", summary.Pull.Applied)
	}
}

func TestRunCycleHonorsCancellation(t *testing.T) {
	s := newTestStore(t)
	r := New(s, "D1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.RunCycle(ctx, &fakeTransport{}, Options{}); err != ErrCancelled {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}
