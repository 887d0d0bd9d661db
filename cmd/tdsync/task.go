package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/mutation"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/termout"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Short:   "Manage tasks",
	GroupID: "data",
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskUpdateCmd, taskDeleteCmd)

	for _, c := range []*cobra.Command{taskCreateCmd, taskUpdateCmd} {
		c.Flags().String("description", "", "task description")
		c.Flags().String("notes", "", "notes markdown")
		c.Flags().String("project-id", "", "owning project id")
		c.Flags().String("status", "", "TODO, DOING, DONE or ARCHIVED")
		c.Flags().String("priority", "", "URGENT, NORMAL or LOW")
		c.Flags().Bool("important", false, "mark as important")
		c.Flags().String("due", "", "due time, RFC3339")
		c.Flags().String("remind", "", "reminder time, RFC3339")
		c.Flags().String("recurrence", "", "NONE, DAILY, WEEKLY or MONTHLY")
	}

	taskListCmd.Flags().String("project-id", "", "filter by project id")
	taskListCmd.Flags().Int("limit", 0, "maximum rows to return")
}

func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var taskCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		description, _ := cmd.Flags().GetString("description")
		notes, _ := cmd.Flags().GetString("notes")
		projectID, _ := cmd.Flags().GetString("project-id")
		status, _ := cmd.Flags().GetString("status")
		priority, _ := cmd.Flags().GetString("priority")
		important, _ := cmd.Flags().GetBool("important")
		dueRaw, _ := cmd.Flags().GetString("due")
		remindRaw, _ := cmd.Flags().GetString("remind")
		recurrence, _ := cmd.Flags().GetString("recurrence")

		due, err := parseOptionalTime(dueRaw)
		if err != nil {
			termout.Error("parse --due: %v", err)
			return err
		}
		remind, err := parseOptionalTime(remindRaw)
		if err != nil {
			termout.Error("parse --remind: %v", err)
			return err
		}

		t, err := app.Mutator.CreateTask(mutation.CreateTaskInput{
			Title:         args[0],
			Description:   description,
			NotesMarkdown: notes,
			ProjectID:     projectID,
			Status:        model.TaskStatus(status),
			Priority:      model.TaskPriority(priority),
			IsImportant:   important,
			DueAt:         due,
			RemindAt:      remind,
			Recurrence:    model.Recurrence(recurrence),
		})
		if err != nil {
			termout.Error("create task: %v", err)
			return err
		}
		termout.Success("created task %s (%s)", t.Title, t.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		projectID, _ := cmd.Flags().GetString("project-id")
		limit, _ := cmd.Flags().GetInt("limit")
		tasks, err := app.Store.ListTasks(store.Predicate{ProjectID: projectID, Limit: limit})
		if err != nil {
			termout.Error("list tasks: %v", err)
			return err
		}
		for _, t := range tasks {
			termout.Info("%s  %-8s  %-6s  %s", t.ID, t.Status, t.Priority, t.Title)
		}
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		existing, err := app.Store.GetTask(args[0])
		if err != nil {
			termout.Error("get task: %v", err)
			return err
		}

		title := existing.Title
		description := existing.Description
		notes := existing.NotesMarkdown
		projectID := existing.ProjectID
		status := string(existing.Status)
		priority := string(existing.Priority)
		important := existing.IsImportant
		due := existing.DueAt
		remind := existing.RemindAt
		recurrence := string(existing.Recurrence)

		if v, _ := cmd.Flags().GetString("description"); cmd.Flags().Changed("description") {
			description = v
		}
		if v, _ := cmd.Flags().GetString("notes"); cmd.Flags().Changed("notes") {
			notes = v
		}
		if v, _ := cmd.Flags().GetString("project-id"); cmd.Flags().Changed("project-id") {
			projectID = v
		}
		if v, _ := cmd.Flags().GetString("status"); cmd.Flags().Changed("status") {
			status = v
		}
		if v, _ := cmd.Flags().GetString("priority"); cmd.Flags().Changed("priority") {
			priority = v
		}
		if v, _ := cmd.Flags().GetBool("important"); cmd.Flags().Changed("important") {
			important = v
		}
		if v, _ := cmd.Flags().GetString("recurrence"); cmd.Flags().Changed("recurrence") {
			recurrence = v
		}
		if cmd.Flags().Changed("due") {
			v, _ := cmd.Flags().GetString("due")
			parsed, err := parseOptionalTime(v)
			if err != nil {
				termout.Error("parse --due: %v", err)
				return err
			}
			due = parsed
		}
		if cmd.Flags().Changed("remind") {
			v, _ := cmd.Flags().GetString("remind")
			parsed, err := parseOptionalTime(v)
			if err != nil {
				termout.Error("parse --remind: %v", err)
				return err
			}
			remind = parsed
		}

		t, occurrence, err := app.Mutator.UpdateTask(mutation.UpdateTaskInput{
			ID:            args[0],
			Title:         title,
			Description:   description,
			NotesMarkdown: notes,
			ProjectID:     projectID,
			Status:        model.TaskStatus(status),
			Priority:      model.TaskPriority(priority),
			IsImportant:   important,
			DueAt:         due,
			RemindAt:      remind,
			Recurrence:    model.Recurrence(recurrence),
		})
		if err != nil {
			termout.Error("update task: %v", err)
			return err
		}
		termout.Success("updated task %s", t.ID)
		if occurrence != nil {
			termout.Info("created next occurrence %s (%s)", occurrence.Title, occurrence.ID)
		}
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Mutator.DeleteTask(args[0]); err != nil {
			termout.Error("delete task: %v", err)
			return err
		}
		termout.Success("deleted task %s", args[0])
		return nil
	},
}
