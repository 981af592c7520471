package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/export"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "advanced",
	Short:   "Write every task to stdout or a file",
	Example: `  taskd export --format yaml
  taskd export --format jsonl -o tasks.jsonl`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openLocal(cmd)
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		name, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if !cmd.Flags().Changed("format") && output != "" {
			if ext := filepath.Ext(output); ext != "" {
				name = ext[1:]
			}
		}
		format, err := export.ParseFormat(name)
		if err != nil {
			fail(a, err)
		}

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				fail(a, fmt.Errorf("failed to create %s: %w", output, err))
			}
			defer f.Close()
			w = f
		}
		if err := a.Export(w, format); err != nil {
			fail(a, err)
		}
		if output != "" {
			stdout().Success("Exported to %s", output)
		}
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "advanced",
	Short:   "Add tasks from a JSONL file",
	Long: `Add tasks from a JSONL file, one task per line.

Records whose ID is already stored are skipped, as are deleted (tombstone)
records. With a session the tasks are queued for upload; without one they
stay on this device until migration.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openLocal(cmd)
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")

		res, err := a.Import(args[0], dryRun, backup)
		if err != nil {
			fail(a, err)
		}

		p := stdout()
		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		p.Success("%s %d task(s)", verb, res.Imported)
		if res.Skipped > 0 {
			p.Field("Skipped", res.Skipped)
		}
		if res.BackupCreated != "" {
			p.Field("Backup", res.BackupCreated)
		}
		for _, msg := range res.Errors {
			p.Warn("%s", msg)
		}
		if !dryRun && res.Imported > 0 && a.Auth.Session() != nil {
			fmt.Println("Run 'taskd sync' to upload them.")
		}
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "advanced",
	Short:   "Erase every task and the session from this device",
	Long: `Erase the local store: tasks, queued changes, the session and the
migration flag. Tasks already on the service are not touched and come back
after the next login.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openLocal(cmd)
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			if !ui.IsInteractive() {
				fail(a, fmt.Errorf("refusing to reset without --yes"))
			}
			ok, err := ui.Confirm("Erase every task on this device?")
			if err != nil && err != ui.ErrAborted {
				fail(a, err)
			}
			if !ok {
				fmt.Println("Nothing changed.")
				return
			}
		}

		if err := a.Reset(); err != nil {
			fail(a, err)
		}
		stdout().Success("Local data erased")
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.GlobalConfigPath()
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := config.WriteDefault(path, force); err != nil {
			fatal(err)
		}
		stdout().Success("Wrote %s", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			fatal(err)
		}
		if err := config.Encode(os.Stdout, cfg); err != nil {
			fatal(err)
		}
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "json", "Output format: json, jsonl, yaml, toml")
	exportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	importCmd.Flags().Bool("dry-run", false, "Validate without storing")
	importCmd.Flags().Bool("backup", false, "Copy the input file before importing")
	resetCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(exportCmd, importCmd, resetCmd, configCmd)
}
