package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/syncconfig"
	"github.com/tdsync/core/internal/syncrunner"
	"github.com/tdsync/core/internal/termout"
	"github.com/tdsync/core/internal/transport"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Run or inspect synchronization cycles",
	GroupID: "sync",
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncRunCmd, syncStatusCmd)
	syncRunCmd.Flags().Bool("skip-pull", false, "only push, do not pull")
}

// buildTransport loads the sync configuration and constructs the HTTP
// transport it describes. A nil transport (with nil error) means sync is
// unconfigured and the caller should treat the device as LOCAL_ONLY.
func buildTransport(profile syncconfig.Profile) (*syncconfig.Config, *transport.HTTPTransport, error) {
	cfg, err := syncconfig.Load(profile)
	if err != nil {
		return nil, nil, err
	}
	if cfg.PushURL == "" {
		return cfg, nil, nil
	}
	return cfg, transport.New(cfg.PushURL, cfg.PullURL, nil), nil
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		cfg, tr, err := buildTransport(syncconfig.ProfileDesktop)
		if err != nil {
			termout.Error("load sync config: %v", err)
			return err
		}
		if tr == nil {
			termout.Warning("sync is not configured (push_url/pull_url empty)")
			return nil
		}

		skipPull, _ := cmd.Flags().GetBool("skip-pull")
		runner := syncrunner.New(app.Store, app.DeviceID)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		summary, err := runner.RunCycle(ctx, tr, syncrunner.Options{
			PushLimit:    cfg.PushLimit,
			PullLimit:    cfg.PullLimit,
			MaxPullPages: cfg.MaxPullPages,
			SkipPull:     skipPull,
		})
		if err != nil {
			termout.Error("sync cycle: %v", err)
			return err
		}
		termout.Info("%s", termout.FormatCycleSummary(summary))
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		checkpoint, err := app.Store.GetCheckpoint()
		if err != nil {
			termout.Error("get checkpoint: %v", err)
			return err
		}

		openConflicts, err := app.Conflicts.ListConflicts(store.ConflictOpen, 0)
		if err != nil {
			termout.Error("list conflicts: %v", err)
			return err
		}

		var lastSummary *syncrunner.CycleSummary
		if checkpoint.LastSyncCursor != "" {
			lastSummary = &syncrunner.CycleSummary{CheckpointAfter: checkpoint.LastSyncCursor}
		}
		status := termout.DeriveStatus(lastSummary, nil, len(openConflicts))
		termout.Info("%s  cursor=%s", termout.FormatStatus(status), checkpoint.LastSyncCursor)
		return nil
	},
}
