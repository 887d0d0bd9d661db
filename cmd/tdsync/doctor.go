package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tdsync/core/internal/syncconfig"
	"github.com/tdsync/core/internal/termout"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Short:   "Check the local store and sync configuration",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		runCheck("store", func() error {
			app, err := newAppContext()
			if err != nil {
				return err
			}
			defer app.Close()
			return nil
		})

		cfg, tr, err := buildTransport(syncconfig.ProfileDesktop)
		runCheck("sync configuration", func() error { return err })
		if err != nil {
			return nil
		}
		if tr == nil {
			termout.Info("%-23s %s", "remote reachable", "SKIPPED (sync not configured)")
			return nil
		}

		runCheck("remote reachable", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			healthURL := strings.TrimSuffix(cfg.PushURL, "/push") + "/healthz"
			return tr.Ping(ctx, healthURL)
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runCheck(name string, fn func() error) {
	if err := fn(); err != nil {
		fmt.Printf("%-23s FAIL (%v)\n", name, err)
		return
	}
	fmt.Printf("%-23s OK\n", name)
}
