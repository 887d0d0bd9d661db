// Package syncrunner is the Sync Runner (C6): the single entry point that
// drives one push/pull cycle end to end, grounded on the teacher's
// internal/sync/client.go top-level Sync method and cmd/sync.go's
// invocation of it.
package syncrunner

import (
	"context"
	"errors"

	"github.com/tdsync/core/internal/conflict"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/syncengine"
	"github.com/tdsync/core/internal/wire"
)

// Transport is the Sync Runner's view of the Transport component (C7).
type Transport interface {
	Push(ctx context.Context, req *wire.PushRequest) (*wire.PushResponse, error)
	Pull(ctx context.Context, req *wire.PullRequest) (*wire.PullResponse, error)
}

// Options configures one cycle (spec §4.6).
type Options struct {
	PushLimit    int
	PullLimit    int
	SkipPull     bool
	MaxPullPages int
}

// PullCycleSummary is the pull-phase slice of CycleSummary.
type PullCycleSummary struct {
	Applied     int
	Skipped     int
	Conflicts   int
	SkippedSelf int
	Failed      int
	HasMore     bool
}

// CycleSummary is run_cycle's return value (spec §4.6 point 6).
type CycleSummary struct {
	DeviceID             string
	CheckpointBefore     string
	CheckpointAfter      string
	PreparedPushChanges  int
	SkippedPushChanges   int
	RemovedOutboxChanges int
	FailedOutboxChanges  int
	PendingOutboxChanges int
	Pull                 PullCycleSummary
}

// defaultPushLimit mirrors the desktop profile's push_limit default
// (spec §6); callers that need the mobile default or custom bounds pass
// Options.PushLimit explicitly.
const defaultPushLimit = 200

// ErrCancelled is returned when the caller's context is done before or
// during a cycle (spec §5's cancellation-token requirement).
var ErrCancelled = errors.New("sync cycle cancelled")

// Runner wires the Sync Engine, Conflict Store and a Transport together.
type Runner struct {
	Engine    *syncengine.Engine
	Conflicts *conflict.Store
}

// New builds a Runner over an existing Store, device id and Transport.
func New(s *store.Store, deviceID string) *Runner {
	return &Runner{
		Engine:    syncengine.New(s, deviceID),
		Conflicts: conflict.New(s, deviceID),
	}
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}

// RunCycle runs one push/pull cycle (spec §4.6). Transport failures
// propagate unchanged; the checkpoint only advances once a response has
// been durably applied, so a cycle that fails partway is safely
// restartable.
func (r *Runner) RunCycle(ctx context.Context, transport Transport, opts Options) (*CycleSummary, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	before, err := r.Engine.Store.GetCheckpoint()
	if err != nil {
		return nil, err
	}

	summary := &CycleSummary{DeviceID: r.Engine.DeviceID, CheckpointBefore: before.LastSyncCursor}

	pushLimit := opts.PushLimit
	if pushLimit <= 0 {
		pushLimit = defaultPushLimit
	}

	var baseCursor *string
	if before.LastSyncCursor != "" {
		cursor := before.LastSyncCursor
		baseCursor = &cursor
	}

	batch, err := r.Engine.PreparePush(baseCursor, pushLimit)
	if err != nil {
		return nil, err
	}
	summary.PreparedPushChanges = len(batch.Request.Changes)
	summary.SkippedPushChanges = len(batch.Skipped)

	if len(batch.Request.Changes) > 0 {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		pushResp, err := transport.Push(ctx, &batch.Request)
		if err != nil {
			return nil, err
		}
		if err := wire.ValidatePushResponse(pushResp); err != nil {
			return nil, err
		}

		ackSummary, err := r.Engine.AcknowledgePush(batch.Pending, pushResp)
		if err != nil {
			return nil, err
		}
		summary.RemovedOutboxChanges = len(ackSummary.RemovedIDs)
		summary.FailedOutboxChanges = len(ackSummary.FailedIDs)
		summary.PendingOutboxChanges = len(ackSummary.PendingIDs)

		if err := r.Engine.AdvanceCursor(pushResp.ServerCursor, pushResp.ServerTime); err != nil {
			return nil, err
		}
	}

	if opts.SkipPull {
		after, err := r.Engine.Store.GetCheckpoint()
		if err != nil {
			return nil, err
		}
		summary.CheckpointAfter = after.LastSyncCursor
		return summary, nil
	}

	pullLimit := wire.ClampPullLimit(opts.PullLimit)
	maxPages := opts.MaxPullPages
	if maxPages <= 0 {
		maxPages = 1
	}

	for page := 0; page < maxPages; page++ {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}

		current, err := r.Engine.Store.GetCheckpoint()
		if err != nil {
			return nil, err
		}
		var cursor *string
		if current.LastSyncCursor != "" {
			c := current.LastSyncCursor
			cursor = &c
		}

		req := &wire.PullRequest{
			SchemaVersion: wire.SchemaVersion,
			DeviceID:      r.Engine.DeviceID,
			Cursor:        cursor,
			Limit:         pullLimit,
		}
		pullResp, err := transport.Pull(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := wire.ValidatePullResponse(pullResp); err != nil {
			return nil, err
		}

		pageSummary, err := r.Engine.ApplyPull(pullResp, r.Conflicts)
		if err != nil {
			return nil, err
		}
		summary.Pull.Applied += pageSummary.Applied
		summary.Pull.Skipped += pageSummary.Skipped
		summary.Pull.Conflicts += pageSummary.Conflicts
		summary.Pull.SkippedSelf += pageSummary.SkippedSelf
		summary.Pull.Failed += pageSummary.Failed

		if err := r.Engine.AdvanceCursor(pullResp.ServerCursor, pullResp.ServerTime); err != nil {
			return nil, err
		}

		summary.Pull.HasMore = pullResp.HasMore
		if !pullResp.HasMore {
			break
		}
	}

	after, err := r.Engine.Store.GetCheckpoint()
	if err != nil {
		return nil, err
	}
	summary.CheckpointAfter = after.LastSyncCursor
	return summary, nil
}
