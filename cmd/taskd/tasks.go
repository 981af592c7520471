package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/storage"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "tasks",
	Short:   "Add a task",
	Example: `  taskd add "Call the dentist" --due "tomorrow 9am" --priority high
  taskd add "Buy milk" --tag home --tag errands`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := openApp(ctx, cmd)
		defer a.Close()

		fields := schema.TaskFields{Title: strings.Join(args, " ")}
		fields.Description, _ = cmd.Flags().GetString("description")
		fields.Tags, _ = cmd.Flags().GetStringSlice("tag")

		prio, _ := cmd.Flags().GetString("priority")
		p, err := schema.ParsePriority(prio)
		if err != nil {
			fail(a, err)
		}
		fields.Priority = p

		if due, _ := cmd.Flags().GetString("due"); due != "" {
			t, err := ui.ParseDue(due, now())
			if err != nil {
				fail(a, err)
			}
			fields.DueDate = &t
		}

		res, err := a.Tasks.Create(ctx, fields)
		if err != nil {
			fail(a, err)
		}
		report(stdout(), "Added", res)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "tasks",
	Short:   "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openLocal(cmd)
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		tasks, err := a.SortedTasks()
		if err != nil {
			fail(a, err)
		}
		if open, _ := cmd.Flags().GetBool("open"); open {
			kept := tasks[:0]
			for _, t := range tasks {
				if !t.Completed {
					kept = append(kept, t)
				}
			}
			tasks = kept
		}
		if tag, _ := cmd.Flags().GetString("tag"); tag != "" {
			kept := tasks[:0]
			for _, t := range tasks {
				for _, tt := range t.Tags {
					if tt == tag {
						kept = append(kept, t)
						break
					}
				}
			}
			tasks = kept
		}

		pending, err := a.PendingTaskIDs()
		if err != nil {
			fail(a, err)
		}
		stdout().Tasks(tasks, pending, now())
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "tasks",
	Short:   "Show every field of a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openLocal(cmd)
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		t, err := a.Resolve(args[0])
		if err != nil {
			fail(a, err)
		}
		stdout().Task(t, now())
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "tasks",
	Short:   "Change a task",
	Example: `  taskd edit 3f2a --title "Call the dentist about the bill"
  taskd edit 3f2a --due none --priority low`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := openApp(ctx, cmd)
		defer a.Close()

		t, err := a.Resolve(args[0])
		if err != nil {
			fail(a, err)
		}

		patch := &schema.TaskPatch{}
		flags := cmd.Flags()
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			patch.Title = &v
		}
		if flags.Changed("description") {
			v, _ := flags.GetString("description")
			patch.Description = &v
		}
		if flags.Changed("priority") {
			v, _ := flags.GetString("priority")
			p, err := schema.ParsePriority(v)
			if err != nil {
				fail(a, err)
			}
			patch.Priority = &p
		}
		if flags.Changed("tag") {
			v, _ := flags.GetStringSlice("tag")
			patch.Tags = &v
		}
		if flags.Changed("due") {
			v, _ := flags.GetString("due")
			if v == "" || v == "none" {
				patch.ClearDue = true
			} else {
				due, err := ui.ParseDue(v, now())
				if err != nil {
					fail(a, err)
				}
				patch.DueDate = &due
			}
		}

		res, err := a.Tasks.Update(ctx, t.ID, patch)
		if err != nil {
			fail(a, err)
		}
		report(stdout(), "Updated", res)
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	GroupID: "tasks",
	Short:   "Toggle a task between done and open",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := openApp(ctx, cmd)
		defer a.Close()

		t, err := a.Resolve(args[0])
		if err != nil {
			fail(a, err)
		}
		res, err := a.Tasks.ToggleCompletion(ctx, t.ID)
		if err != nil {
			fail(a, err)
		}
		verb := "Reopened"
		if res.Task.Completed {
			verb = "Completed"
		}
		report(stdout(), verb, res)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	GroupID: "tasks",
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := openApp(ctx, cmd)
		defer a.Close()

		t, err := a.Resolve(args[0])
		if err != nil {
			fail(a, err)
		}
		res, err := a.Tasks.Delete(ctx, t.ID)
		if err != nil {
			fail(a, err)
		}
		report(stdout(), "Deleted", res)
	},
}

// report prints the outcome of a change and whether it still has to sync.
func report(p *ui.Printer, verb string, res *storage.Result) {
	p.Success("%s %s %s", verb, ui.ShortID(res.Task.ID), res.Task.Title)
	switch {
	case res.Task.LocalOnly:
	case res.Optimistic && res.RemoteErr != nil:
		p.Warn("saved on this device; the service rejected or missed it (%v)", res.RemoteErr)
	case res.Optimistic:
		p.Printf("  saved on this device, will sync when online\n")
	}
	if res.OperationID != "" {
		p.Printf("  queued as %s\n", ui.ShortID(res.OperationID))
	}
}

func init() {
	addCmd.Flags().StringP("description", "d", "", "Longer description")
	addCmd.Flags().StringP("priority", "p", "medium", "Priority (low, medium, high)")
	addCmd.Flags().String("due", "", `Due date ("2026-11-01", "tomorrow 9am", "next friday")`)
	addCmd.Flags().StringSliceP("tag", "t", nil, "Tag (repeatable)")

	listCmd.Flags().Bool("open", false, "Hide completed tasks")
	listCmd.Flags().String("tag", "", "Only tasks with this tag")

	editCmd.Flags().String("title", "", "New title")
	editCmd.Flags().StringP("description", "d", "", "New description")
	editCmd.Flags().StringP("priority", "p", "", "New priority")
	editCmd.Flags().String("due", "", `New due date, or "none" to clear it`)
	editCmd.Flags().StringSliceP("tag", "t", nil, "Replace tags (repeatable)")

	rootCmd.AddCommand(addCmd, listCmd, showCmd, editCmd, doneCmd, rmCmd)
}
