package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/termout"
)

var settingCmd = &cobra.Command{
	Use:     "setting",
	Short:   "Manage settings",
	GroupID: "data",
}

func init() {
	rootCmd.AddCommand(settingCmd)
	settingCmd.AddCommand(settingGetCmd, settingPutCmd, settingListCmd, settingDeleteCmd)
}

var settingGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		setting, err := app.Store.GetSetting(args[0])
		if err != nil {
			termout.Error("get setting: %v", err)
			return err
		}
		termout.Info("%s", setting.Value)
		return nil
	},
}

var settingPutCmd = &cobra.Command{
	Use:   "put [key] [value]",
	Short: "Set a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		if _, err := app.Mutator.PutSetting(args[0], args[1]); err != nil {
			termout.Error("put setting: %v", err)
			return err
		}
		termout.Success("set %s", args[0])
		return nil
	},
}

var settingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		settings, err := app.Store.ListSettings()
		if err != nil {
			termout.Error("list settings: %v", err)
			return err
		}
		for _, s := range settings {
			termout.Info("%-40s %s", s.Key, s.Value)
		}
		return nil
	},
}

var settingDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Delete a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Mutator.DeleteSetting(args[0]); err != nil {
			termout.Error("delete setting: %v", err)
			return err
		}
		termout.Success("deleted %s", args[0])
		return nil
	},
}
