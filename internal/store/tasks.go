package store

import (
	"fmt"
	"slices"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// All returns every stored task in insertion order.
func (s *Store) All() ([]*schema.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := loadTasks(s.conn)
	if err != nil {
		return nil, err
	}
	out := make([]*schema.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out, nil
}

// Get returns the task with the given ID or a NOT_FOUND error.
func (s *Store) Get(id string) (*schema.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := loadTasks(s.conn)
	if err != nil {
		return nil, err
	}
	if i := indexOfTask(tasks, id); i >= 0 {
		return tasks[i].Clone(), nil
	}
	return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("task %s not found", id))
}

// Upsert inserts task or replaces the stored task with the same ID.
func (s *Store) Upsert(task *schema.Task) error {
	if err := task.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid task", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(q querier) error {
		tasks, err := loadTasks(q)
		if err != nil {
			return err
		}
		if i := indexOfTask(tasks, task.ID); i >= 0 {
			tasks[i] = task.Clone()
		} else {
			tasks = append(tasks, task.Clone())
		}
		return s.writeJSON(q, KeyTasks, tasks)
	})
}

// Remove deletes the task with the given ID.
// Returns nil if the task doesn't exist (idempotent).
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(q querier) error {
		tasks, err := loadTasks(q)
		if err != nil {
			return err
		}
		i := indexOfTask(tasks, id)
		if i < 0 {
			return nil
		}
		return s.writeJSON(q, KeyTasks, slices.Delete(tasks, i, i+1))
	})
}

// LocalOnly returns the tasks not yet attached to a durable account.
func (s *Store) LocalOnly() ([]*schema.Task, error) {
	tasks, err := s.All()
	if err != nil {
		return nil, err
	}
	var out []*schema.Task
	for _, t := range tasks {
		if t.LocalOnly {
			out = append(out, t)
		}
	}
	return out, nil
}

func loadTasks(q querier) ([]*schema.Task, error) {
	var tasks []*schema.Task
	if _, err := readJSON(q, KeyTasks, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func indexOfTask(tasks []*schema.Task, id string) int {
	return slices.IndexFunc(tasks, func(t *schema.Task) bool { return t.ID == id })
}
