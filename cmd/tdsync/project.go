package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/mutation"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/termout"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Short:   "Manage projects",
	GroupID: "data",
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectUpdateCmd, projectDeleteCmd)

	projectCreateCmd.Flags().String("description", "", "project description")
	projectCreateCmd.Flags().String("color", "", "project color")
	projectCreateCmd.Flags().String("status", "", "ACTIVE, COMPLETED or ARCHIVED")

	projectUpdateCmd.Flags().String("name", "", "new name")
	projectUpdateCmd.Flags().String("description", "", "new description")
	projectUpdateCmd.Flags().String("color", "", "new color")
	projectUpdateCmd.Flags().String("status", "ACTIVE", "ACTIVE, COMPLETED or ARCHIVED")

	projectListCmd.Flags().Int("limit", 0, "maximum rows to return")
}

var projectCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		description, _ := cmd.Flags().GetString("description")
		color, _ := cmd.Flags().GetString("color")
		status, _ := cmd.Flags().GetString("status")

		p, err := app.Mutator.CreateProject(mutation.CreateProjectInput{
			Name:        args[0],
			Description: description,
			Color:       color,
			Status:      model.ProjectStatus(status),
		})
		if err != nil {
			termout.Error("create project: %v", err)
			return err
		}
		termout.Success("created project %s (%s)", p.Name, p.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		projects, err := app.Store.ListProjects(store.Predicate{Limit: limit})
		if err != nil {
			termout.Error("list projects: %v", err)
			return err
		}
		for _, p := range projects {
			termout.Info("%s  %-8s  %s", p.ID, p.Status, p.Name)
		}
		return nil
	},
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		existing, err := app.Store.GetProject(args[0])
		if err != nil {
			termout.Error("get project: %v", err)
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = existing.Name
		}
		description, _ := cmd.Flags().GetString("description")
		if !cmd.Flags().Changed("description") {
			description = existing.Description
		}
		color, _ := cmd.Flags().GetString("color")
		if !cmd.Flags().Changed("color") {
			color = existing.Color
		}
		status, _ := cmd.Flags().GetString("status")
		if !cmd.Flags().Changed("status") {
			status = string(existing.Status)
		}

		p, err := app.Mutator.UpdateProject(mutation.UpdateProjectInput{
			ID:          args[0],
			Name:        name,
			Description: description,
			Color:       color,
			Status:      model.ProjectStatus(status),
		})
		if err != nil {
			termout.Error("update project: %v", err)
			return err
		}
		termout.Success("updated project %s", p.ID)
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Mutator.DeleteProject(args[0]); err != nil {
			termout.Error("delete project: %v", err)
			return err
		}
		termout.Success("deleted project %s", args[0])
		return nil
	},
}
