package ui

import (
	"fmt"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// StatusView is the data shown by taskd status.
type StatusView struct {
	Online        bool
	Account       string // empty when no session exists
	Guest         bool
	Tasks         int
	LocalOnly     int
	Pending       int
	Conflicts     int
	LastSyncAt    time.Time
	MigrationNote string
	StoreBytes    int64
}

// Status prints v.
func (p *Printer) Status(v StatusView) {
	conn := p.styles.bad.Render("offline")
	if v.Online {
		conn = p.styles.ok.Render("online")
	}
	p.Field("Connectivity", conn)

	switch {
	case v.Account == "":
		p.Field("Session", p.styles.muted.Render("none (tasks stay on this device)"))
	case v.Guest:
		p.Field("Session", "guest "+v.Account)
	default:
		p.Field("Session", v.Account)
	}

	p.Field("Tasks", fmt.Sprintf("%d (%d local only)", v.Tasks, v.LocalOnly))
	pending := fmt.Sprint(v.Pending)
	if v.Pending > 0 {
		pending = p.styles.warn.Render(pending)
	}
	p.Field("Pending", pending)
	conflicts := fmt.Sprint(v.Conflicts)
	if v.Conflicts > 0 {
		conflicts = p.styles.bad.Render(conflicts)
	}
	p.Field("Conflicts", conflicts)

	last := "never"
	if !v.LastSyncAt.IsZero() {
		last = v.LastSyncAt.Local().Format(time.DateTime)
	}
	p.Field("Last sync", last)
	if v.MigrationNote != "" {
		p.Field("Migration", v.MigrationNote)
	}
	p.Field("Store size", fmt.Sprintf("%d bytes", v.StoreBytes))
}

// Conflicts prints the unresolved conflicts.
func (p *Printer) Conflicts(cs []*schema.Conflict) {
	if len(cs) == 0 {
		_, _ = fmt.Fprintln(p.out, p.styles.muted.Render("No conflicts."))
		return
	}
	for _, c := range cs {
		_, _ = fmt.Fprintf(p.out, "%s %s %s\n",
			p.styles.muted.Render(ShortID(c.TaskID)),
			p.styles.warn.Render(fmt.Sprintf("%-13s", c.Kind)),
			c.Title(),
		)
		_, _ = fmt.Fprintf(p.out, "    %s\n", p.styles.muted.Render(DescribeConflict(c)))
	}
}
