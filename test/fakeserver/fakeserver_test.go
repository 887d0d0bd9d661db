package fakeserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tdsync/core/internal/wire"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(":memory:", WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, httptest.NewServer(s.Handler())
}

func doJSON(t *testing.T, url string, body, out any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestPushAcceptsChangesAndAdvancesCursor(t *testing.T) {
	_, srv := newTestServer(t)
	defer srv.Close()

	req := wire.PushRequest{
		SchemaVersion: wire.SchemaVersion,
		DeviceID:      "d1",
		Changes: []wire.SyncChange{
			{
				EntityType: "PROJECT", EntityID: "p1", Operation: "UPSERT",
				UpdatedAt: "2026-01-01T00:00:00Z", UpdatedByDevice: "d1", SyncVersion: 1,
				Payload: json.RawMessage(`{"name":"Inbox"}`), IdempotencyKey: "k1",
			},
		},
	}
	var resp wire.PushResponse
	httpResp := doJSON(t, srv.URL+"/push", req, &resp)
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", httpResp.StatusCode)
	}
	if len(resp.Accepted) != 1 || resp.Accepted[0] != "k1" {
		t.Fatalf("accepted = %v", resp.Accepted)
	}
	if resp.ServerCursor != "1" {
		t.Fatalf("server_cursor = %q, want 1", resp.ServerCursor)
	}
}

func TestPushIsIdempotentOnRetry(t *testing.T) {
	_, srv := newTestServer(t)
	defer srv.Close()

	req := wire.PushRequest{
		SchemaVersion: wire.SchemaVersion,
		DeviceID:      "d1",
		Changes: []wire.SyncChange{
			{
				EntityType: "PROJECT", EntityID: "p1", Operation: "UPSERT",
				UpdatedAt: "2026-01-01T00:00:00Z", UpdatedByDevice: "d1", SyncVersion: 1,
				Payload: json.RawMessage(`{}`), IdempotencyKey: "k1",
			},
		},
	}
	var first, second wire.PushResponse
	doJSON(t, srv.URL+"/push", req, &first)
	doJSON(t, srv.URL+"/push", req, &second)

	if first.ServerCursor != second.ServerCursor {
		t.Fatalf("retried push advanced the cursor again: %s -> %s", first.ServerCursor, second.ServerCursor)
	}
}

func TestPullPaginatesWithHasMore(t *testing.T) {
	_, srv := newTestServer(t)
	defer srv.Close()

	push := wire.PushRequest{SchemaVersion: wire.SchemaVersion, DeviceID: "d1"}
	for i := 0; i < 3; i++ {
		push.Changes = append(push.Changes, wire.SyncChange{
			EntityType: "TASK", EntityID: string(rune('a' + i)), Operation: "UPSERT",
			UpdatedAt: "2026-01-01T00:00:00Z", UpdatedByDevice: "d1", SyncVersion: 1,
			Payload: json.RawMessage(`{}`), IdempotencyKey: string(rune('a' + i)),
		})
	}
	var pushResp wire.PushResponse
	doJSON(t, srv.URL+"/push", push, &pushResp)

	var page1 wire.PullResponse
	doJSON(t, srv.URL+"/pull", wire.PullRequest{SchemaVersion: wire.SchemaVersion, DeviceID: "d2", Limit: 2}, &page1)
	if len(page1.Changes) != 2 || !page1.HasMore {
		t.Fatalf("page1 = %+v", page1)
	}

	var page2 wire.PullResponse
	doJSON(t, srv.URL+"/pull", wire.PullRequest{SchemaVersion: wire.SchemaVersion, DeviceID: "d2", Cursor: &page1.ServerCursor, Limit: 2}, &page2)
	if len(page2.Changes) != 1 || page2.HasMore {
		t.Fatalf("page2 = %+v", page2)
	}
}

func TestPushRejectsMissingIdempotencyKey(t *testing.T) {
	_, srv := newTestServer(t)
	defer srv.Close()

	req := wire.PushRequest{
		SchemaVersion: wire.SchemaVersion,
		DeviceID:      "d1",
		Changes: []wire.SyncChange{
			{EntityType: "PROJECT", EntityID: "p1", Operation: "UPSERT", Payload: json.RawMessage(`{}`)},
		},
	}
	var resp wire.PushResponse
	doJSON(t, srv.URL+"/push", req, &resp)
	if len(resp.Rejected) != 1 || resp.Rejected[0].Reason != wire.RejectInvalidPayload {
		t.Fatalf("rejected = %+v", resp.Rejected)
	}
}

func TestPushRateLimitReturns429(t *testing.T) {
	s, err := New(":memory:", WithPushRateLimit(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	req := wire.PushRequest{
		SchemaVersion: wire.SchemaVersion,
		DeviceID:      "d1",
		Changes: []wire.SyncChange{
			{EntityType: "PROJECT", EntityID: "p1", Operation: "UPSERT", UpdatedAt: "2026-01-01T00:00:00Z",
				UpdatedByDevice: "d1", SyncVersion: 1, Payload: json.RawMessage(`{}`), IdempotencyKey: "k1"},
		},
	}
	doJSON(t, srv.URL+"/push", req, new(wire.PushResponse))

	req.Changes[0].IdempotencyKey = "k2"
	resp := doJSON(t, srv.URL+"/push", req, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
}

func TestHealthzReturns200(t *testing.T) {
	_, srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
