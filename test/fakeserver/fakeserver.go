// Package fakeserver is a reference implementation of the opaque remote peer
// the Transport component (C7) talks to, for use in integration tests.
// Grounded on the teacher's internal/api/sync.go push/pull handlers and
// internal/api/ratelimit.go fixed-window limiter, backed by
// github.com/mattn/go-sqlite3 rather than the teacher's modernc.org/sqlite
// so the corpus's cgo sqlite driver gets a home alongside the pure-Go one
// internal/store uses.
package fakeserver

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tdsync/core/internal/wire"
)

// Server is a sqlite-backed, single-tenant stand-in for the remote peer. It
// keeps one append-only change log shared by all devices: every accepted
// change is assigned a monotonically increasing sequence number that becomes the
// server_cursor a pull page returns.
type Server struct {
	db          *sql.DB
	rateLimiter *rateLimiter
	pushLimit   int // per-device pushes allowed per 1-minute window
	clock       func() time.Time
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithPushRateLimit caps the number of push requests one device may make per
// minute before the server starts responding 429 RATE_LIMITED, mirroring the
// teacher's per-key rate limiter tiers.
func WithPushRateLimit(perMinute int) Option {
	return func(s *Server) { s.pushLimit = perMinute }
}

// WithClock overrides the server's notion of "now", for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) { s.clock = clock }
}

// New opens (creating if necessary) a sqlite-backed fake server at dbPath.
// Pass ":memory:" for a throwaway, test-local instance.
func New(dbPath string, opts ...Option) (*Server, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open fakeserver db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply fakeserver schema: %w", err)
	}

	s := &Server{
		db:          db,
		rateLimiter: newRateLimiter(),
		pushLimit:   0, // unlimited by default
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS changes (
	seq               INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type       TEXT NOT NULL,
	entity_id         TEXT NOT NULL,
	operation         TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	updated_by_device TEXT NOT NULL,
	sync_version      INTEGER NOT NULL,
	payload           TEXT,
	idempotency_key   TEXT NOT NULL UNIQUE,
	received_at       TEXT NOT NULL
);
`

// Close releases the underlying database handle.
func (s *Server) Close() error {
	return s.db.Close()
}

// Handler returns the http.Handler exposing /push, /pull and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/push", s.handlePush)
	mux.HandleFunc("/pull", s.handlePull)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeServerError(w http.ResponseWriter, status int, code wire.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(wire.ServerError{Code: code, Message: message})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req wire.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServerError(w, http.StatusBadRequest, wire.ErrInvalidArgument, "invalid json body")
		return
	}
	if err := wire.ValidateSchemaVersion(req.SchemaVersion); err != nil {
		writeServerError(w, http.StatusBadRequest, wire.ErrInvalidArgument, err.Error())
		return
	}
	if req.DeviceID == "" {
		writeServerError(w, http.StatusBadRequest, wire.ErrInvalidArgument, "device_id is required")
		return
	}

	if s.pushLimit > 0 && !s.rateLimiter.allow("push:"+req.DeviceID, s.pushLimit) {
		retryMs := 1000
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(wire.ServerError{
			Code: wire.ErrRateLimited, Message: "push rate limit exceeded", RetryAfterMs: &retryMs,
		})
		return
	}

	resp := wire.PushResponse{}
	now := s.clock()

	for _, raw := range req.Changes {
		c := raw.Normalize()
		if c.EntityType == "" || c.EntityID == "" || c.IdempotencyKey == "" {
			resp.Rejected = append(resp.Rejected, wire.Rejection{
				IdempotencyKey: c.IdempotencyKey, Reason: wire.RejectInvalidPayload, Message: "missing required field",
			})
			continue
		}

		res, err := s.db.Exec(`
			INSERT OR IGNORE INTO changes
				(entity_type, entity_id, operation, updated_at, updated_by_device, sync_version, payload, idempotency_key, received_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.EntityType, c.EntityID, c.Operation, c.UpdatedAt, c.UpdatedByDevice, c.SyncVersion, string(c.Payload), c.IdempotencyKey, now.UTC().Format(time.RFC3339Nano))
		if err != nil {
			resp.Rejected = append(resp.Rejected, wire.Rejection{
				IdempotencyKey: c.IdempotencyKey, Reason: wire.RejectInternalError, Message: err.Error(),
			})
			continue
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Already applied under this idempotency key; treat as accepted
			// (a retried push must be a no-op, spec §4.3 point 4).
		}
		resp.Accepted = append(resp.Accepted, c.IdempotencyKey)
	}

	cursor, serverTime, err := s.currentCursor()
	if err != nil {
		writeServerError(w, http.StatusInternalServerError, wire.ErrInternalError, err.Error())
		return
	}
	resp.ServerCursor = cursor
	resp.ServerTime = serverTime

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req wire.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServerError(w, http.StatusBadRequest, wire.ErrInvalidArgument, "invalid json body")
		return
	}
	if err := wire.ValidateSchemaVersion(req.SchemaVersion); err != nil {
		writeServerError(w, http.StatusBadRequest, wire.ErrInvalidArgument, err.Error())
		return
	}

	afterSeq := int64(0)
	if req.Cursor != nil && *req.Cursor != "" {
		n, err := strconv.ParseInt(*req.Cursor, 10, 64)
		if err != nil {
			writeServerError(w, http.StatusBadRequest, wire.ErrInvalidArgument, "invalid cursor")
			return
		}
		afterSeq = n
	}
	limit := wire.ClampPullLimit(req.Limit)

	rows, err := s.db.Query(`
		SELECT seq, entity_type, entity_id, operation, updated_at, updated_by_device, sync_version, payload, idempotency_key
		FROM changes WHERE seq > ? ORDER BY seq ASC LIMIT ?
	`, afterSeq, limit+1)
	if err != nil {
		writeServerError(w, http.StatusInternalServerError, wire.ErrInternalError, err.Error())
		return
	}
	defer rows.Close()

	// Fetch one extra row beyond limit, purely to detect has_more without a
	// second COUNT query.
	var changes []wire.SyncChange
	var seqs []int64
	for rows.Next() {
		var seq int64
		var c wire.SyncChange
		var payload sql.NullString
		if err := rows.Scan(&seq, &c.EntityType, &c.EntityID, &c.Operation, &c.UpdatedAt, &c.UpdatedByDevice, &c.SyncVersion, &payload, &c.IdempotencyKey); err != nil {
			writeServerError(w, http.StatusInternalServerError, wire.ErrInternalError, err.Error())
			return
		}
		if payload.Valid {
			c.Payload = json.RawMessage(payload.String)
		}
		changes = append(changes, c)
		seqs = append(seqs, seq)
	}

	hasMore := len(changes) > limit
	if hasMore {
		changes = changes[:limit]
		seqs = seqs[:limit]
	}

	lastSeq := afterSeq
	if len(seqs) > 0 {
		lastSeq = seqs[len(seqs)-1]
	}

	resp := wire.PullResponse{
		ServerCursor: strconv.FormatInt(lastSeq, 10),
		ServerTime:   s.clock().UTC().Format(time.RFC3339Nano),
		HasMore:      hasMore,
		Changes:      changes,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) currentCursor() (cursor string, serverTime string, err error) {
	var maxSeq sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(seq) FROM changes`).Scan(&maxSeq); err != nil {
		return "", "", err
	}
	seq := int64(0)
	if maxSeq.Valid {
		seq = maxSeq.Int64
	}
	return strconv.FormatInt(seq, 10), s.clock().UTC().Format(time.RFC3339Nano), nil
}
