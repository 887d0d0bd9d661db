package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/mutation"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/termout"
)

var subtaskCmd = &cobra.Command{
	Use:     "subtask",
	Short:   "Manage task subtasks",
	GroupID: "data",
}

func init() {
	rootCmd.AddCommand(subtaskCmd)
	subtaskCmd.AddCommand(subtaskCreateCmd, subtaskListCmd, subtaskUpdateCmd, subtaskDeleteCmd)

	subtaskCreateCmd.Flags().Bool("done", false, "mark as already done")
	subtaskUpdateCmd.Flags().String("title", "", "new title")
	subtaskUpdateCmd.Flags().Bool("done", false, "done state")
	subtaskListCmd.Flags().String("task-id", "", "filter by task id")
	subtaskListCmd.Flags().Int("limit", 0, "maximum rows to return")
}

var subtaskCreateCmd = &cobra.Command{
	Use:   "create [task-id] [title]",
	Short: "Create a subtask",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		done, _ := cmd.Flags().GetBool("done")
		st, err := app.Mutator.CreateSubtask(mutation.CreateSubtaskInput{
			TaskID: args[0],
			Title:  args[1],
			IsDone: done,
		})
		if err != nil {
			termout.Error("create subtask: %v", err)
			return err
		}
		termout.Success("created subtask %s (%s)", st.Title, st.ID)
		return nil
	},
}

var subtaskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subtasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		taskID, _ := cmd.Flags().GetString("task-id")
		limit, _ := cmd.Flags().GetInt("limit")
		subtasks, err := app.Store.ListSubtasks(store.Predicate{TaskID: taskID, Limit: limit})
		if err != nil {
			termout.Error("list subtasks: %v", err)
			return err
		}
		for _, st := range subtasks {
			termout.Info("%s  done=%-5v  %s", st.ID, st.IsDone, st.Title)
		}
		return nil
	},
}

var subtaskUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update a subtask",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		existing, err := app.Store.GetSubtask(args[0])
		if err != nil {
			termout.Error("get subtask: %v", err)
			return err
		}

		title := existing.Title
		if v, _ := cmd.Flags().GetString("title"); cmd.Flags().Changed("title") {
			title = v
		}
		done := existing.IsDone
		if v, _ := cmd.Flags().GetBool("done"); cmd.Flags().Changed("done") {
			done = v
		}

		st, err := app.Mutator.UpdateSubtask(mutation.UpdateSubtaskInput{
			ID:     args[0],
			Title:  title,
			IsDone: done,
		})
		if err != nil {
			termout.Error("update subtask: %v", err)
			return err
		}
		termout.Success("updated subtask %s", st.ID)
		return nil
	},
}

var subtaskDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a subtask",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Mutator.DeleteSubtask(args[0]); err != nil {
			termout.Error("delete subtask: %v", err)
			return err
		}
		termout.Success("deleted subtask %s", args[0])
		return nil
	},
}
