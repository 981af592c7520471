package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/loadtest"
	"github.com/mschirtzinger/tasksync/internal/logging"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Sync several simulated devices and check they converge",
	Long: `Run a convergence load test.

Each simulated device has its own store and signs in to one account. The
devices create, edit and delete tasks while offline, then sync concurrently.
The run fails unless every device ends with exactly the service's tasks.

Without --remote an in-process service is started.`,
	Example: `  taskd loadtest --devices 10 --tasks 50
  taskd loadtest --remote http://127.0.0.1:8787`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		cfg := loadConfig(cmd)
		logger, _, closer := logging.New(cfg.Log)
		defer closer.Close()

		dir, err := os.MkdirTemp("", "tasksync-loadtest-*")
		if err != nil {
			fatal(err)
		}
		defer os.RemoveAll(dir)

		flags := cmd.Flags()
		lc := &loadtest.Config{Dir: dir, Logger: logger}
		lc.Devices, _ = flags.GetInt("devices")
		lc.TasksPerDevice, _ = flags.GetInt("tasks")
		lc.EditsPerDevice, _ = flags.GetInt("edits")
		lc.RemoteURL, _ = flags.GetString("remote")
		lc.Username, _ = flags.GetString("user")
		lc.Password = os.Getenv("TASKSYNC_PASSWORD")

		fmt.Printf("Running load test with %d devices...\n", lc.Devices)
		report, err := loadtest.Run(ctx, lc)
		if err != nil {
			fatal(err)
		}

		p := stdout()
		p.Heading("Load test")
		p.Field("Devices", report.Devices)
		p.Field("Operations", report.Operations)
		p.Field("Conflicts", report.Conflicts)
		p.Field("Tasks", report.Tasks)
		p.Field("Duration", report.Duration.Round(time.Millisecond))
		p.Heading("Sync passes")
		s := report.Sync
		p.Field("Passes", s.Passes)
		p.Field("P50", s.P50)
		p.Field("P95", s.P95)
		p.Field("P99", s.P99)
		p.Field("Max", s.Max)

		if !report.Converged {
			fatal(fmt.Errorf("devices diverged from the service: %v", report.Divergent))
		}
		p.Success("All devices converged")
	},
}

func init() {
	loadtestCmd.Flags().Int("devices", 5, "Number of simulated devices")
	loadtestCmd.Flags().Int("tasks", 20, "Tasks created per device")
	loadtestCmd.Flags().Int("edits", 10, "Edits per device (-1 for none)")
	loadtestCmd.Flags().String("remote", "", "Service URL (default: in-process)")
	loadtestCmd.Flags().String("user", "loadtest", "Account every device signs in to")

	rootCmd.AddCommand(loadtestCmd)
}
