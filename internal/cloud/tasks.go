package cloud

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// maxBulkItems caps a single bulk create request.
const maxBulkItems = 100

func (s *Server) handleList(c *gin.Context) {
	sess := currentSession(c)

	s.mu.Lock()
	s.stats.Lists++
	tasks := s.listLocked(sess.userID)
	s.mu.Unlock()

	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleCreate(c *gin.Context) {
	sess := currentSession(c)

	var task schema.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Creates++
	stored, status, err := s.createLocked(sess, &task)
	if err != nil {
		abort(c, status, codeFor(status), err.Error())
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleBulk(c *gin.Context) {
	sess := currentSession(c)

	var req struct {
		Tasks []*schema.Task `json:"tasks"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if len(req.Tasks) > maxBulkItems {
		abort(c, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("at most %d tasks per request", maxBulkItems))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Bulk++
	result := remote.BulkResult{Created: []*schema.Task{}}
	for _, t := range req.Tasks {
		if t == nil {
			continue
		}
		stored, status, err := s.createLocked(sess, t)
		if err != nil {
			result.Failed = append(result.Failed, remote.BulkFailure{ID: t.ID, Code: codeFor(status), Error: err.Error()})
			continue
		}
		result.Created = append(result.Created, stored)
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleUpdate(c *gin.Context) {
	sess := currentSession(c)
	id := c.Param("id")

	var patch schema.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Updates++
	cur, ok := s.tasks[id]
	if !ok || cur.OwnerID != sess.userID {
		abort(c, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("task %s not found", id))
		return
	}

	next, err := patch.Apply(cur, s.now())
	if err != nil {
		abort(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}
	s.tasks[id] = next
	c.JSON(http.StatusOK, next.Clone())
}

func (s *Server) handleDelete(c *gin.Context) {
	sess := currentSession(c)
	id := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Deletes++
	cur, ok := s.tasks[id]
	if !ok || cur.OwnerID != sess.userID {
		abort(c, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("task %s not found", id))
		return
	}
	s.removeLocked(id)
	c.Status(http.StatusNoContent)
}

// createLocked stores t for sess. The client-generated ID is kept; a task
// whose ID already exists is rejected with 409.
func (s *Server) createLocked(sess *session, t *schema.Task) (*schema.Task, int, error) {
	task := t.Clone()
	task.OwnerID = sess.userID
	task.LocalOnly = false
	if task.CreatedAt.IsZero() {
		task.CreatedAt = schema.Timestamp(s.now())
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}
	if task.Priority == "" {
		task.Priority = schema.PriorityMedium
	}
	if err := task.Validate(); err != nil {
		return nil, http.StatusUnprocessableEntity, err
	}
	if _, exists := s.tasks[task.ID]; exists {
		return nil, http.StatusConflict, fmt.Errorf("task %s already exists", task.ID)
	}

	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	return task.Clone(), 0, nil
}

func codeFor(status int) string {
	switch status {
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusNotFound:
		return "NOT_FOUND"
	default:
		return "VALIDATION_ERROR"
	}
}
