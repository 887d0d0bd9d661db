// Package cmd implements the tdsync CLI using cobra, grounded on the
// teacher's cmd package: one *cobra.Command per file, a package-level
// rootCmd, and a getBaseDir-style helper threading the store directory
// through every subcommand.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/conflict"
	"github.com/tdsync/core/internal/mutation"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/syncengine"
	"github.com/tdsync/core/internal/termout"
)

var (
	versionStr      string
	baseDir         string
	baseDirOverride *string // for testing
)

// SetVersion sets the version string cobra reports for --version.
func SetVersion(v string) {
	versionStr = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "tdsync",
	Short: "Offline-first task store with multi-device synchronization",
	Long: `tdsync manages projects, tasks and settings in a local store and
synchronizes them with a remote peer using last-writer-wins merge and
explicit conflict tracking.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "path to the store directory (defaults to $XDG_DATA_HOME/tdsync or ~/.local/share/tdsync)")
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Data commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
	)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getBaseDir() string {
	if baseDirOverride != nil {
		return *baseDirOverride
	}
	if baseDir != "" {
		return baseDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "tdsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tdsync"
	}
	return filepath.Join(home, ".local", "share", "tdsync")
}

// openStore opens the store at getBaseDir, requiring it to already exist
// (i.e. `tdsync init` must have run first).
func openStore() (*store.Store, error) {
	s, err := store.Open(getBaseDir())
	if err != nil {
		termout.Error("open store: %v", err)
		return nil, err
	}
	return s, nil
}

// currentDeviceID reads the device identity stamped into the store at init
// time (model.DeviceIDSettingKey), the source of truth the Sync Engine and
// Mutation API use for shadow stamping.
func currentDeviceID(s *store.Store) (string, error) {
	setting, err := s.GetSetting(deviceIDSettingKey)
	if err != nil {
		return "", fmt.Errorf("device identity not found, run `tdsync init` first: %w", err)
	}
	return setting.Value, nil
}

const deviceIDSettingKey = "local.device_id"

type appContext struct {
	Store     *store.Store
	DeviceID  string
	Mutator   *mutation.Mutator
	Engine    *syncengine.Engine
	Conflicts *conflict.Store
}

func newAppContext() (*appContext, error) {
	s, err := openStore()
	if err != nil {
		return nil, err
	}
	deviceID, err := currentDeviceID(s)
	if err != nil {
		s.Close()
		termout.Error("%v", err)
		return nil, err
	}
	return &appContext{
		Store:     s,
		DeviceID:  deviceID,
		Mutator:   mutation.New(s, deviceID),
		Engine:    syncengine.New(s, deviceID),
		Conflicts: conflict.New(s, deviceID),
	}, nil
}

func (a *appContext) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}

func init() {
	slog.SetLogLoggerLevel(slog.LevelInfo)
}
