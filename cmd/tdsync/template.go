package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/mutation"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/termout"
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Short:   "Manage task templates",
	GroupID: "data",
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateCreateCmd, templateListCmd, templateUpdateCmd, templateDeleteCmd, templateInstantiateCmd)

	for _, c := range []*cobra.Command{templateCreateCmd, templateUpdateCmd} {
		c.Flags().String("title-template", "", "title applied to instantiated tasks")
		c.Flags().String("description", "", "description")
		c.Flags().String("priority", "", "URGENT, NORMAL or LOW")
		c.Flags().Bool("important", false, "mark instantiated tasks important")
		c.Flags().Int("due-offset-minutes", 0, "minutes after instantiation the task is due")
		c.Flags().Int("remind-offset-minutes", 0, "minutes after instantiation to remind")
		c.Flags().String("recurrence", "", "NONE, DAILY, WEEKLY or MONTHLY")
	}

	templateListCmd.Flags().Int("limit", 0, "maximum rows to return")
}

func optionalIntFlag(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}

var templateCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a task template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		titleTemplate, _ := cmd.Flags().GetString("title-template")
		description, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetString("priority")
		important, _ := cmd.Flags().GetBool("important")
		recurrence, _ := cmd.Flags().GetString("recurrence")

		t, err := app.Mutator.CreateTemplate(mutation.CreateTemplateInput{
			Name:                args[0],
			TitleTemplate:       titleTemplate,
			Description:         description,
			Priority:            model.TaskPriority(priority),
			IsImportant:         important,
			DueOffsetMinutes:    optionalIntFlag(cmd, "due-offset-minutes"),
			RemindOffsetMinutes: optionalIntFlag(cmd, "remind-offset-minutes"),
			Recurrence:          model.Recurrence(recurrence),
		})
		if err != nil {
			termout.Error("create template: %v", err)
			return err
		}
		termout.Success("created template %s (%s)", t.Name, t.ID)
		return nil
	},
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List task templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		templates, err := app.Store.ListTemplates(store.Predicate{Limit: limit})
		if err != nil {
			termout.Error("list templates: %v", err)
			return err
		}
		for _, t := range templates {
			termout.Info("%s  %-6s  %s", t.ID, t.Priority, t.Name)
		}
		return nil
	},
}

var templateUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update a task template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		existing, err := app.Store.GetTemplate(args[0])
		if err != nil {
			termout.Error("get template: %v", err)
			return err
		}

		titleTemplate := existing.TitleTemplate
		if v, _ := cmd.Flags().GetString("title-template"); cmd.Flags().Changed("title-template") {
			titleTemplate = v
		}
		description := existing.Description
		if v, _ := cmd.Flags().GetString("description"); cmd.Flags().Changed("description") {
			description = v
		}
		priority := string(existing.Priority)
		if v, _ := cmd.Flags().GetString("priority"); cmd.Flags().Changed("priority") {
			priority = v
		}
		important := existing.IsImportant
		if v, _ := cmd.Flags().GetBool("important"); cmd.Flags().Changed("important") {
			important = v
		}
		recurrence := string(existing.Recurrence)
		if v, _ := cmd.Flags().GetString("recurrence"); cmd.Flags().Changed("recurrence") {
			recurrence = v
		}
		dueOffset := existing.DueOffsetMinutes
		if v := optionalIntFlag(cmd, "due-offset-minutes"); v != nil {
			dueOffset = v
		}
		remindOffset := existing.RemindOffsetMinutes
		if v := optionalIntFlag(cmd, "remind-offset-minutes"); v != nil {
			remindOffset = v
		}

		t, err := app.Mutator.UpdateTemplate(mutation.UpdateTemplateInput{
			ID:                  args[0],
			Name:                existing.Name,
			TitleTemplate:       titleTemplate,
			Description:         description,
			Priority:            model.TaskPriority(priority),
			IsImportant:         important,
			DueOffsetMinutes:    dueOffset,
			RemindOffsetMinutes: remindOffset,
			Recurrence:          model.Recurrence(recurrence),
		})
		if err != nil {
			termout.Error("update template: %v", err)
			return err
		}
		termout.Success("updated template %s", t.ID)
		return nil
	},
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a task template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Mutator.DeleteTemplate(args[0]); err != nil {
			termout.Error("delete template: %v", err)
			return err
		}
		termout.Success("deleted template %s", args[0])
		return nil
	},
}

var templateInstantiateCmd = &cobra.Command{
	Use:   "instantiate [id]",
	Short: "Create a task from a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		t, err := app.Mutator.InstantiateTask(args[0], app.Engine.Clock)
		if err != nil {
			termout.Error("instantiate template: %v", err)
			return err
		}
		termout.Success("created task %s (%s)", t.Title, t.ID)
		return nil
	},
}
