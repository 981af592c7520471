package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/app"
	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

// loadConfig is rawConfig for interactive commands: unless a level is given
// on the command line or logs go to a file, only warnings reach stderr.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := rawConfig(cmd)
	if !cmd.Flags().Changed("log-level") && cfg.Log.File == "" {
		cfg.Log.Level = "warn"
	}
	return cfg
}

// rawConfig reads the config named by --config plus the global and project
// files, then applies --log-level.
func rawConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		fatal(fmt.Errorf("failed to load config: %w", err))
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg
}

// openApp builds the application and probes the service when a session
// exists. The caller closes it.
func openApp(ctx context.Context, cmd *cobra.Command) *app.App {
	return openAppConfig(ctx, loadConfig(cmd))
}

func openAppConfig(ctx context.Context, cfg *config.Config) *app.App {
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		fatal(err)
	}
	probeCtx, cancel := context.WithTimeout(ctx, a.Config.Remote.ProbeTimeout)
	defer cancel()
	_ = a.Connect(probeCtx)
	return a
}

// openLocal builds the application without contacting the service.
func openLocal(cmd *cobra.Command) (*app.App, error) {
	a, err := app.New(loadConfig(cmd), app.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func stdout() *ui.Printer {
	return ui.NewPrinter(os.Stdout)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func now() time.Time {
	return time.Now()
}

// fail closes a and exits with err.
func fail(a *app.App, err error) {
	_ = a.Close()
	fatal(err)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
