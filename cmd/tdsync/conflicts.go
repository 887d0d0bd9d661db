package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/conflict"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/termout"
)

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	Short:   "Inspect and resolve sync conflicts",
	GroupID: "sync",
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
	conflictsCmd.AddCommand(conflictsListCmd, conflictsResolveCmd, conflictsIgnoreCmd, conflictsExportCmd)

	conflictsListCmd.Flags().String("status", "open", "open, resolved or ignored")
	conflictsListCmd.Flags().Int("limit", 50, "maximum rows to return")

	conflictsResolveCmd.Flags().String("strategy", "", "keep_local, keep_remote, manual_merge or retry")
	conflictsResolveCmd.Flags().String("payload", "", "resolution payload JSON, required for manual_merge")

	conflictsExportCmd.Flags().String("status", "", "filter by status, empty for all")
	conflictsExportCmd.Flags().Int("limit", 0, "maximum conflicts to include")
	conflictsExportCmd.Flags().Int("events-limit", 20, "maximum events per conflict")
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		statusFlag, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		conflicts, err := app.Conflicts.ListConflicts(store.ConflictStatus(statusFlag), limit)
		if err != nil {
			termout.Error("list conflicts: %v", err)
			return err
		}
		for _, c := range conflicts {
			termout.Info("%s", termout.FormatConflict(c))
		}
		return nil
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve [id]",
	Short: "Resolve a conflict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		strategy, _ := cmd.Flags().GetString("strategy")
		payload, _ := cmd.Flags().GetString("payload")

		c, err := app.Conflicts.Resolve(args[0], conflict.Strategy(strategy), payload, app.DeviceID)
		if err != nil {
			termout.Error("resolve conflict: %v", err)
			return err
		}
		termout.Success("conflict %s now %s", c.ID, c.Status)
		return nil
	},
}

var conflictsIgnoreCmd = &cobra.Command{
	Use:   "ignore [id]",
	Short: "Ignore a conflict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		c, err := app.Conflicts.Ignore(args[0], app.DeviceID)
		if err != nil {
			termout.Error("ignore conflict: %v", err)
			return err
		}
		termout.Success("conflict %s now %s", c.ID, c.Status)
		return nil
	},
}

var conflictsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a conflict report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		statusFlag, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		eventsLimit, _ := cmd.Flags().GetInt("events-limit")

		report, err := app.Conflicts.ExportReport(store.ConflictStatus(statusFlag), limit, eventsLimit)
		if err != nil {
			termout.Error("export conflict report: %v", err)
			return err
		}
		return termout.JSON(report)
	},
}
