// Package ui renders tasks and sync state for the terminal and runs the
// interactive prompts used by taskd.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes styled output. Colors are disabled when the output is not a
// terminal or NO_COLOR is set.
type Printer struct {
	out      io.Writer
	renderer *lipgloss.Renderer
	styles   styles
}

type styles struct {
	title    lipgloss.Style
	muted    lipgloss.Style
	ok       lipgloss.Style
	warn     lipgloss.Style
	bad      lipgloss.Style
	label    lipgloss.Style
	priority map[string]lipgloss.Style
}

// NewPrinter returns a printer for w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	if !isTerminal(w) || termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Printer{out: w, renderer: r, styles: newStyles(r)}
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title: r.NewStyle().Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("245")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("42")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("214")),
		bad:   r.NewStyle().Foreground(lipgloss.Color("196")),
		label: r.NewStyle().Foreground(lipgloss.Color("39")).Width(16),
		priority: map[string]lipgloss.Style{
			"high":   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
			"medium": r.NewStyle().Foreground(lipgloss.Color("214")),
			"low":    r.NewStyle().Foreground(lipgloss.Color("245")),
		},
	}
}

// Printf writes formatted, unstyled text.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.styles.ok.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.styles.warn.Render("! "+fmt.Sprintf(format, args...)))
}

// Field prints one aligned label/value line.
func (p *Printer) Field(label string, value any) {
	_, _ = fmt.Fprintf(p.out, "%s %v\n", p.styles.label.Render(label), value)
}

// Heading prints a bold heading.
func (p *Printer) Heading(s string) {
	_, _ = fmt.Fprintln(p.out, p.styles.title.Render(s))
}

// IsInteractive reports whether both stdin and stdout are terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
