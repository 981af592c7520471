package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// ShortID is the prefix of a task ID shown in listings.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Tasks prints one line per task. pending marks tasks with queued changes.
func (p *Printer) Tasks(tasks []*schema.Task, pending map[string]bool, now time.Time) {
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(p.out, p.styles.muted.Render("No tasks."))
		return
	}
	for _, t := range tasks {
		_, _ = fmt.Fprintln(p.out, p.taskLine(t, pending[t.ID], now))
	}
}

func (p *Printer) taskLine(t *schema.Task, pending bool, now time.Time) string {
	box := "[ ]"
	title := t.Title
	if t.Completed {
		box = "[x]"
		title = p.styles.muted.Render(title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %s",
		box,
		p.styles.muted.Render(ShortID(t.ID)),
		p.priority(t.Priority),
		title,
	)
	if t.DueDate != nil {
		due := "due " + FormatDue(*t.DueDate, now)
		if !t.Completed && t.DueDate.Before(now) {
			due = p.styles.bad.Render(due)
		} else {
			due = p.styles.muted.Render(due)
		}
		b.WriteString("  " + due)
	}
	if len(t.Tags) > 0 {
		b.WriteString("  " + p.styles.muted.Render("#"+strings.Join(t.Tags, " #")))
	}
	if t.LocalOnly {
		b.WriteString("  " + p.styles.warn.Render("(local)"))
	}
	if pending {
		b.WriteString("  " + p.styles.warn.Render("(pending)"))
	}
	return b.String()
}

func (p *Printer) priority(pr schema.Priority) string {
	pad := strings.Repeat(" ", max(0, 6-len(pr)))
	style, ok := p.styles.priority[string(pr)]
	if !ok {
		return string(pr) + pad
	}
	return style.Render(string(pr)) + pad
}

// Task prints every field of t.
func (p *Printer) Task(t *schema.Task, now time.Time) {
	p.Heading(t.Title)
	p.Field("ID", t.ID)
	p.Field("Priority", p.priority(t.Priority))
	p.Field("Completed", t.Completed)
	if t.Description != "" {
		p.Field("Description", t.Description)
	}
	if t.DueDate != nil {
		p.Field("Due", FormatDue(*t.DueDate, now))
	}
	if len(t.Tags) > 0 {
		p.Field("Tags", strings.Join(t.Tags, ", "))
	}
	p.Field("Owner", t.OwnerID)
	if t.LocalOnly {
		p.Field("Local only", true)
	}
	p.Field("Created", t.CreatedAt.Local().Format(time.DateTime))
	p.Field("Updated", t.UpdatedAt.Local().Format(time.DateTime))
}

// FormatDue renders a due date relative to now when it is close.
func FormatDue(due, now time.Time) string {
	local := due.Local()
	now = now.Local()
	switch {
	case sameDay(local, now):
		return "today " + local.Format("15:04")
	case sameDay(local, now.AddDate(0, 0, 1)):
		return "tomorrow " + local.Format("15:04")
	default:
		return local.Format("2006-01-02 15:04")
	}
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
