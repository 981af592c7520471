package main

import (
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/app"
	"github.com/mschirtzinger/tasksync/internal/cloud"
	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/logging"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Keep this device in sync in the background",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Probes the service and follows connectivity changes
  2. Syncs on a schedule, when the device comes back online and shortly
     after local changes
  3. Serves the live dashboard (WebSocket, /status, /metrics) when enabled
  4. Reloads log.level when the config file changes

Stop it with Ctrl-C.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		path, _ := cmd.Flags().GetString("config")
		cfg := rawConfig(cmd)
		a := openAppConfig(ctx, cfg)
		defer a.Close()

		opts := app.DaemonOptions{ConfigPaths: config.DefaultPaths(path)}
		if cmd.Flags().Changed("dashboard") {
			v, _ := cmd.Flags().GetBool("dashboard")
			opts.Dashboard = &v
		}
		if watch, _ := cmd.Flags().GetBool("watch-config"); watch {
			opts.WatchFile = watchTarget(opts.ConfigPaths)
		}

		if err := a.RunDaemon(ctx, opts); err != nil {
			fail(a, err)
		}
	},
}

var cloudCmd = &cobra.Command{
	Use:     "cloud",
	GroupID: "advanced",
	Short:   "Development task service",
}

var cloudServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task API from memory",
	Long: `Serve the task API from memory for local development and tests.

Accounts come from cloud.accounts in the config; with none configured any
non-empty username and password is accepted. Data is lost on exit.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		cfg := rawConfig(cmd)
		logger, _, closer := logging.New(cfg.Log)
		defer closer.Close()

		addr := cfg.Cloud.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		srv := cloud.New(&cloud.Config{
			Accounts: cfg.Cloud.Accounts,
			TokenTTL: cfg.Cloud.TokenTTL,
			Logger:   logger,
		})
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			fatal(err)
		}
	},
}

// watchTarget picks the most specific config file that exists.
func watchTarget(paths config.Paths) string {
	for _, p := range []string{paths.Explicit, paths.Project, paths.Global} {
		if p != "" && fileExists(p) {
			return p
		}
	}
	return ""
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the dashboard (overrides dashboard.enabled)")
	daemonCmd.Flags().Bool("watch-config", true, "Reload log.level when the config file changes")
	cloudServeCmd.Flags().String("addr", "", "Listen address (overrides cloud.addr)")

	cloudCmd.AddCommand(cloudServeCmd)
	rootCmd.AddCommand(daemonCmd, cloudCmd)
}
