package cmd

import (
	"database/sql"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/syncconfig"
	"github.com/tdsync/core/internal/termout"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize a new tdsync store",
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getBaseDir()
		if _, err := os.Stat(dir); err == nil {
			termout.Warning("%s already exists", dir)
			return nil
		}

		s, err := store.Initialize(dir)
		if err != nil {
			termout.Error("initialize store: %v", err)
			return err
		}
		defer s.Close()

		deviceID, err := syncconfig.LoadOrCreateDeviceID()
		if err != nil {
			termout.Error("create device identity: %v", err)
			return err
		}

		if err := seedDeviceIdentity(s, deviceID); err != nil {
			termout.Error("stamp device identity: %v", err)
			return err
		}

		termout.Success("initialized tdsync store at %s (device %s)", dir, deviceID)
		return nil
	},
}

// seedDeviceIdentity writes the local device-id setting directly (bypassing
// the Mutation API) since at init time no device identity yet exists for
// PutSetting's shadow stamping to use as updated_by_device. It is always
// local-only (model.IsLocalOnly matches the "local." prefix), so it never
// needs an outbox row.
func seedDeviceIdentity(s *store.Store, deviceID string) error {
	now := time.Now().UTC()
	return s.Mutate(func(tx *sql.Tx) error {
		return s.UpsertSetting(tx, deviceIDSettingKey, deviceID, now, deviceID, 1)
	})
}
