// Package export converts tasks to and from files: JSONL import plus JSON,
// JSONL, YAML and TOML export.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Record is one line of an import file. It accepts the tasksync export shape
// as well as issue-tracker style lines (status, labels, numeric priority,
// due_at).
type Record struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Completed   bool            `json:"completed,omitempty"`
	Status      string          `json:"status,omitempty"`
	Priority    json.RawMessage `json:"priority,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	DueAt       *time.Time      `json:"due_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FromJSONL reads a JSONL file. Blank lines are ignored.
func FromJSONL(path string) ([]*Record, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	var records []*Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

// Tombstone reports whether the record marks a deleted entry.
func (r *Record) Tombstone() bool {
	return strings.EqualFold(r.Status, "tombstone") || strings.EqualFold(r.Status, "deleted")
}

// ToTask converts r to a task owned by ownerID. Missing IDs and timestamps
// are filled in.
func (r *Record) ToTask(ownerID string, localOnly bool, now time.Time) (*schema.Task, error) {
	priority, err := r.priority()
	if err != nil {
		return nil, err
	}

	t := &schema.Task{
		ID:          r.ID,
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		Completed:   r.Completed || isClosed(r.Status),
		Priority:    priority,
		Tags:        r.Tags,
		OwnerID:     ownerID,
		LocalOnly:   localOnly,
		CreatedAt:   schema.Timestamp(r.CreatedAt),
		UpdatedAt:   schema.Timestamp(r.UpdatedAt),
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if len(t.Tags) == 0 {
		t.Tags = r.Labels
	}
	due := r.DueDate
	if due == nil {
		due = r.DueAt
	}
	if due != nil {
		d := schema.Timestamp(*due)
		t.DueDate = &d
	}
	if r.CreatedAt.IsZero() {
		t.CreatedAt = schema.Timestamp(now)
	}
	if r.UpdatedAt.IsZero() || t.UpdatedAt.Before(t.CreatedAt) {
		t.UpdatedAt = t.CreatedAt
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// priority accepts "low"/"medium"/"high" or an integer where 0 and 1 are
// high, 2 is medium and anything larger is low.
func (r *Record) priority() (schema.Priority, error) {
	raw := bytes.TrimSpace(r.Priority)
	if len(raw) == 0 || string(raw) == "null" {
		return schema.PriorityMedium, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return schema.ParsePriority(s)
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return "", fmt.Errorf("priority must be a name or an integer (got %s)", raw)
	}
	switch {
	case n <= 1:
		return schema.PriorityHigh, nil
	case n == 2:
		return schema.PriorityMedium, nil
	default:
		return schema.PriorityLow, nil
	}
}

func isClosed(status string) bool {
	switch strings.ToLower(status) {
	case "closed", "done", "completed":
		return true
	default:
		return false
	}
}
