package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/migration"
)

var loginCmd = &cobra.Command{
	Use:     "login <username>",
	GroupID: "sync",
	Short:   "Sign in and move this device's tasks to the account",
	Long: `Sign in to an account.

Tasks created without an account are uploaded first, exactly once. After
login every change syncs with the account.

The password is read from --password, the TASKSYNC_PASSWORD environment
variable, or a prompt.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		password, err := readPassword(cmd)
		if err != nil {
			fatal(err)
		}

		a := openApp(ctx, cmd)
		defer a.Close()

		res, err := a.Login(ctx, args[0], password)
		if err != nil {
			fail(a, err)
		}

		p := stdout()
		p.Success("Logged in as %s", res.Session.UserID)
		if m := res.Migration; m != nil && m.Required {
			p.Field("Migrated", m.Migrated)
			if m.Skipped > 0 {
				p.Field("Skipped", fmt.Sprintf("%d (already on the account)", m.Skipped))
			}
			if m.Errors > 0 {
				p.Warn("%d task(s) could not be uploaded and were queued for the next sync", m.Errors)
			}
		}
		if res.SyncErr != nil {
			p.Warn("Sync after login failed: %v", res.SyncErr)
		} else if res.Sync != nil {
			p.Field("Pulled", res.Sync.Pulled)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "sync",
	Short:   "Forget the session (tasks stay on this device)",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openLocal(cmd)
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.Logout(); err != nil {
			fail(a, err)
		}
		stdout().Success("Logged out")
	},
}

var guestCmd = &cobra.Command{
	Use:     "guest",
	GroupID: "sync",
	Short:   "Start a guest session so tasks sync without an account",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := openApp(ctx, cmd)
		defer a.Close()

		sess, err := a.Guest(ctx)
		if err != nil {
			fail(a, err)
		}
		p := stdout()
		p.Success("Guest session %s", sess.UserID)
		p.Field("Expires", sess.ExpiresAt.Local().Format(time.DateTime))
	},
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "advanced",
	Short:   "Upload tasks created without an account",
	Long: `Upload local-only tasks to the remote service.

Migration normally runs as part of 'taskd login'. Run it directly to retry
after a failure or to migrate under a guest session. Ctrl-C stops it after
the current item; a later run continues without creating duplicates.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		cfg := loadConfig(cmd)
		if bulk, _ := cmd.Flags().GetBool("bulk"); bulk {
			cfg.Migration.Bulk = true
		}
		a := openAppConfig(ctx, cfg)
		defer a.Close()

		required, err := a.Migration.CheckRequired()
		if err != nil {
			fail(a, err)
		}

		p := stdout()
		if status, _ := cmd.Flags().GetBool("status"); status {
			st := a.Migration.Status()
			p.Field("Required", required)
			p.Field("Completed", st.Completed)
			if st.LastError != "" {
				p.Field("Last error", st.LastError)
			}
			return
		}
		if !required {
			fmt.Println("Nothing to migrate.")
			return
		}

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				_ = a.Migration.Cancel()
			case <-done:
			}
		}()

		report, err := a.Migration.Run(ctx)
		if apperrors.Is(err, apperrors.ErrCancelled) {
			st := a.Migration.Status()
			p.Warn("Migration stopped after %d of %d task(s); run taskd migrate to continue", st.Migrated, st.Total)
			return
		}
		if err != nil {
			fail(a, err)
		}
		printReport(a.Migration.Status(), report)
	},
}

func printReport(st migration.State, r *migration.Report) {
	p := stdout()
	p.Success("Migration %s in %v", st.Stage, r.Duration.Round(time.Millisecond))
	p.Field("Migrated", r.Migrated)
	p.Field("Skipped", r.Skipped)
	if r.Errors > 0 {
		p.Warn("%d task(s) failed and were queued for the next sync", r.Errors)
	}
}

func readPassword(cmd *cobra.Command) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}
	if pw := os.Getenv("TASKSYNC_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	loginCmd.Flags().StringP("password", "p", "", "Password (prompted when omitted)")
	migrateCmd.Flags().Bool("status", false, "Only report whether migration is required")
	migrateCmd.Flags().Bool("bulk", false, "Send each batch through the bulk endpoint")

	rootCmd.AddCommand(loginCmd, logoutCmd, guestCmd, migrateCmd)
}
