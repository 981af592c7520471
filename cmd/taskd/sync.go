package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/app"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Send queued changes and pull the latest tasks",
	Long: `Run one sync pass:

  1. Check that the service is reachable
  2. Replay queued changes in the order they were made
  3. Merge the service's tasks into this device (newest change wins)
  4. Report conflicts that need a decision`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := openApp(ctx, cmd)
		defer a.Close()

		if !a.Auth.Usable() {
			fmt.Println("No session: tasks stay on this device. Run 'taskd login' or 'taskd guest' to sync.")
			return
		}

		res, err := a.Sync.Sync(ctx)
		if err != nil {
			fail(a, err)
		}
		p := stdout()
		p.Success("Sync complete in %v", res.Duration.Round(time.Millisecond))
		p.Field("Sent", res.Synced)
		p.Field("Pulled", res.Pulled)
		if res.Failed > 0 {
			p.Field("Dropped", res.Failed)
		}
		if n := len(res.Conflicts); n > 0 {
			p.Warn("%d conflict(s) need a decision: taskd conflicts resolve", n)
		}
	},
}

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	GroupID: "sync",
	Short:   "List tasks that changed on both sides",
	Long: `Run a sync pass and list the conflicts it found.

A conflict is a task deleted on one side while still present or changed on
the other. Edits on both sides are settled automatically by the newest
change.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := openApp(ctx, cmd)
		defer a.Close()

		stdout().Conflicts(detectConflicts(ctx, a))
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve [id] [local|remote]",
	Short: "Decide which version of a conflicting task wins",
	Long: `Resolve conflicts found by a sync pass.

With an id and a choice the conflict is resolved directly. Otherwise every
conflict is offered in an interactive prompt.

  local   keep this device's version (a deletion stays deleted)
  remote  take the service's version`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := openApp(ctx, cmd)
		defer a.Close()

		conflicts := detectConflicts(ctx, a)
		if len(conflicts) == 0 {
			fmt.Println("No conflicts.")
			return
		}

		if len(args) == 2 {
			choice := schema.Resolution(args[1])
			if !choice.Valid() {
				fail(a, fmt.Errorf("choice must be local or remote (got %q)", args[1]))
			}
			c := findConflict(conflicts, args[0])
			if c == nil {
				fail(a, fmt.Errorf("no conflict for task %q", args[0]))
			}
			resolve(ctx, a, c, choice)
			return
		}

		if !ui.IsInteractive() {
			fail(a, fmt.Errorf("not a terminal: pass an id and local or remote"))
		}
		if len(args) == 1 {
			c := findConflict(conflicts, args[0])
			if c == nil {
				fail(a, fmt.Errorf("no conflict for task %q", args[0]))
			}
			conflicts = []*schema.Conflict{c}
		}
		for _, c := range conflicts {
			choice, err := ui.PickResolution(c)
			if err == ui.ErrAborted {
				return
			}
			if err != nil {
				fail(a, err)
			}
			resolve(ctx, a, c, choice)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connectivity, session and queue state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := openLocal(cmd)
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		probeCtx, cancelProbe := context.WithTimeout(ctx, a.Config.Remote.ProbeTimeout)
		defer cancelProbe()
		v, err := a.Status(probeCtx)
		if err != nil {
			fail(a, err)
		}
		stdout().Status(v)
	},
}

// detectConflicts runs a pass when possible; conflicts live only for the
// life of the process that found them.
func detectConflicts(ctx context.Context, a *app.App) []*schema.Conflict {
	if !a.Auth.Usable() {
		return nil
	}
	if _, err := a.Sync.Sync(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: sync failed, conflicts may be incomplete: %v\n", err)
	}
	return a.Sync.Conflicts()
}

func findConflict(conflicts []*schema.Conflict, ref string) *schema.Conflict {
	var match *schema.Conflict
	for _, c := range conflicts {
		if c.TaskID == ref {
			return c
		}
		if len(ref) >= 4 && len(c.TaskID) >= len(ref) && c.TaskID[:len(ref)] == ref {
			if match != nil {
				return nil
			}
			match = c
		}
	}
	return match
}

func resolve(ctx context.Context, a *app.App, c *schema.Conflict, choice schema.Resolution) {
	if err := a.Sync.ResolveConflict(ctx, c.TaskID, choice); err != nil {
		fail(a, err)
	}
	stdout().Success("Kept the %s version of %s", choice, c.Title())
}

func init() {
	conflictsCmd.AddCommand(conflictsResolveCmd)
	rootCmd.AddCommand(syncCmd, conflictsCmd, statusCmd)
}
