package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dueLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDue reads a due date as an absolute timestamp ("2026-11-01",
// "2026-11-01 09:30") or a natural phrase ("tomorrow 9am", "next friday")
// relative to now. Dates without a time of day fall at 09:00 local.
func ParseDue(input string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, fmt.Errorf("due date is empty")
	}

	for _, layout := range dueLayouts {
		t, err := time.ParseInLocation(layout, s, now.Location())
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			t = t.Add(9 * time.Hour)
		}
		return t, nil
	}

	r, err := dueParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse due date %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse due date %q", input)
	}
	return r.Time, nil
}
