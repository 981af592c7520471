package schema

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field limits.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxTags              = 20
)

// LocalOwnerID is the owner recorded on tasks created without any session.
const LocalOwnerID = "local"

// Priority is one of a fixed set of urgency levels.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// ParsePriority converts user input to a Priority. Empty input yields medium.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("priority must be one of low, medium, high (got %q)", s)
	}
	return p, nil
}

// Task is a single entry in the user's task list.
type Task struct {
	// ===== Core Identification =====
	ID string `json:"id" yaml:"id" toml:"id"`

	// ===== Task Content =====
	Title       string   `json:"title" yaml:"title" toml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Completed   bool     `json:"completed" yaml:"completed" toml:"completed"`
	Priority    Priority `json:"priority" yaml:"priority" toml:"priority"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`

	// ===== Scheduling =====
	DueDate *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty" toml:"due_date,omitempty"`

	// ===== Ownership =====
	OwnerID   string `json:"owner_id" yaml:"owner_id" toml:"owner_id"`
	LocalOnly bool   `json:"local_only" yaml:"local_only" toml:"local_only"` // not yet attached to a durable account

	// ===== Timestamps (merge ordering) =====
	CreatedAt time.Time `json:"created_at" yaml:"created_at" toml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" toml:"updated_at"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if err := validateTitle(t.Title); err != nil {
		return err
	}
	if len(t.Description) > MaxDescriptionLength {
		return fmt.Errorf("description must be %d characters or less (got %d)", MaxDescriptionLength, len(t.Description))
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("priority must be one of low, medium, high (got %q)", t.Priority)
	}
	if len(t.Tags) > MaxTags {
		return fmt.Errorf("at most %d tags are allowed (got %d)", MaxTags, len(t.Tags))
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if t.UpdatedAt.Before(t.CreatedAt) {
		return fmt.Errorf("updated_at must not be before created_at")
	}
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(title))
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Tags = slices.Clone(t.Tags)
	if t.DueDate != nil {
		due := *t.DueDate
		c.DueDate = &due
	}
	return &c
}

// Touch advances UpdatedAt to now. The new value is always strictly greater
// than the previous one so that an edit is never considered "equal" by merge.
func (t *Task) Touch(now time.Time) {
	ts := Timestamp(now)
	if !ts.After(t.UpdatedAt) {
		ts = t.UpdatedAt.Add(time.Millisecond)
	}
	t.UpdatedAt = ts
}

// SameContent reports whether two tasks carry the same user-visible fields.
// Ownership and timestamps are ignored.
func (t *Task) SameContent(o *Task) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Title != o.Title || t.Description != o.Description ||
		t.Completed != o.Completed || t.Priority != o.Priority {
		return false
	}
	if !slices.Equal(t.Tags, o.Tags) {
		return false
	}
	switch {
	case t.DueDate == nil && o.DueDate == nil:
		return true
	case t.DueDate == nil || o.DueDate == nil:
		return false
	default:
		return t.DueDate.Equal(*o.DueDate)
	}
}

// TaskFields is the caller-supplied body of a create request.
type TaskFields struct {
	Title       string
	Description string
	Priority    Priority
	DueDate     *time.Time
	Tags        []string
}

// NewTask builds a validated task from fields. The ID is generated here and
// never changes afterwards.
func NewTask(fields TaskFields, ownerID string, localOnly bool, now time.Time) (*Task, error) {
	ts := Timestamp(now)
	t := &Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(fields.Title),
		Description: fields.Description,
		Priority:    fields.Priority,
		Tags:        normalizeTags(fields.Tags),
		OwnerID:     ownerID,
		LocalOnly:   localOnly,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if fields.DueDate != nil {
		due := Timestamp(*fields.DueDate)
		t.DueDate = &due
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// TaskPatch is a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ClearDue    bool       `json:"clear_due,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`

	// UpdatedAt carries the client's modification time so the remote stores
	// the same ordering value the device holds.
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil &&
		p.Priority == nil && p.DueDate == nil && !p.ClearDue && p.Tags == nil
}

// Apply returns a copy of t with the patch applied and validated. UpdatedAt is
// taken from the patch when present, otherwise advanced to now.
func (p *TaskPatch) Apply(t *Task, now time.Time) (*Task, error) {
	out := t.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Completed != nil {
		out.Completed = *p.Completed
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.ClearDue {
		out.DueDate = nil
	} else if p.DueDate != nil {
		due := Timestamp(*p.DueDate)
		out.DueDate = &due
	}
	if p.Tags != nil {
		out.Tags = normalizeTags(*p.Tags)
	}
	if p.UpdatedAt != nil {
		out.UpdatedAt = Timestamp(*p.UpdatedAt)
	} else {
		out.Touch(now)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// PatchFromTask builds a patch that makes a remote copy equal to t.
func PatchFromTask(t *Task) *TaskPatch {
	title := t.Title
	desc := t.Description
	completed := t.Completed
	priority := t.Priority
	tags := slices.Clone(t.Tags)
	if tags == nil {
		tags = []string{}
	}
	updated := t.UpdatedAt
	p := &TaskPatch{
		Title:       &title,
		Description: &desc,
		Completed:   &completed,
		Priority:    &priority,
		Tags:        &tags,
		UpdatedAt:   &updated,
	}
	if t.DueDate != nil {
		due := *t.DueDate
		p.DueDate = &due
	} else {
		p.ClearDue = true
	}
	return p
}

// Timestamp normalizes t to UTC with millisecond precision.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}
