// Package remote is the client side of the cloud task service: the task API
// consumed by the sync engine, the migration engine and the storage facade,
// and the session lifecycle (guest token, refresh, login) it depends on.
//
// Wire format: JSON under /api/v1 with a bearer token.
//
//	GET    /api/v1/tasks            list the session owner's tasks
//	POST   /api/v1/tasks            create (client-generated ID is kept)
//	PATCH  /api/v1/tasks/{id}       partial update
//	DELETE /api/v1/tasks/{id}       delete
//	POST   /api/v1/tasks/bulk       create many, per-item results
//	GET    /api/v1/health           unauthenticated reachability check
//	POST   /api/v1/auth/guest       issue a guest session
//	POST   /api/v1/auth/refresh     exchange a refresh token
//	POST   /api/v1/auth/login       exchange credentials for an account session
package remote

import (
	"context"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// APIPrefix is the path prefix for every endpoint.
const APIPrefix = "/api/v1"

// API is the remote task service.
type API interface {
	ListTasks(ctx context.Context) ([]*schema.Task, error)
	CreateTask(ctx context.Context, task *schema.Task) (*schema.Task, error)
	UpdateTask(ctx context.Context, id string, patch *schema.TaskPatch) (*schema.Task, error)
	DeleteTask(ctx context.Context, id string) error
	BulkCreate(ctx context.Context, tasks []*schema.Task) (*BulkResult, error)
	Health(ctx context.Context) error
}

// Authenticator owns the current session.
type Authenticator interface {
	// Session returns the current session, or nil.
	Session() *schema.Session
	// GuestSession requests a fresh anonymous session and makes it current.
	GuestSession(ctx context.Context) (*schema.Session, error)
	// Refresh exchanges the refresh token for a new session.
	Refresh(ctx context.Context) (*schema.Session, error)
	// Login exchanges credentials for a full account session.
	Login(ctx context.Context, username, password string) (*schema.Session, error)
}

// BulkResult reports per-item outcomes of a bulk create.
type BulkResult struct {
	Created []*schema.Task `json:"created"`
	Failed  []BulkFailure  `json:"failed,omitempty"`
}

// BulkFailure is one rejected item of a bulk create.
type BulkFailure struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ErrorBody is the JSON error envelope returned by every endpoint.
type ErrorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the refresh request body.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
