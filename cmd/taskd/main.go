// Command taskd is the tasksync command-line client, daemon and development
// server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "taskd",
	Short: "Offline-first task list that syncs when it can",
	Long: `taskd keeps a task list on this device and syncs it with a tasksync
service whenever the service is reachable.

Every change is saved locally first. Without an account tasks stay on this
device; after 'taskd login' they are migrated to the account and kept in sync.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "sync", Title: "Sync and accounts:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.tasksync/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.Version = Version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
