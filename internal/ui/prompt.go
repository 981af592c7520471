package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("aborted")

// PickResolution asks which side of c should win.
func PickResolution(c *schema.Conflict) (schema.Resolution, error) {
	var choice schema.Resolution
	sel := huh.NewSelect[schema.Resolution]().
		Title(fmt.Sprintf("Resolve %q", c.Title())).
		Description(DescribeConflict(c)).
		Options(
			huh.NewOption(sideLabel("Keep this device's version", c.Local), schema.ResolveLocal),
			huh.NewOption(sideLabel("Keep the server's version", c.Remote), schema.ResolveRemote),
		).
		Value(&choice)

	if err := huh.NewForm(huh.NewGroup(sel)).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", ErrAborted
		}
		return "", err
	}
	return choice, nil
}

// Confirm asks a yes/no question. The default answer is no.
func Confirm(question string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

// DescribeConflict explains a conflict in one line.
func DescribeConflict(c *schema.Conflict) string {
	switch c.Kind {
	case schema.ConflictDelete:
		return "deleted on the server, still present on this device"
	case schema.ConflictDeleteUpdate:
		return "deleted on this device, changed on the server since"
	default:
		return "changed on both sides"
	}
}

func sideLabel(label string, t *schema.Task) string {
	if t == nil {
		return label + " (deleted)"
	}
	return fmt.Sprintf("%s: %s", label, t.Title)
}
