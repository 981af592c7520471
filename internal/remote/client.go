package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Config holds configuration for the HTTP client.
type Config struct {
	// BaseURL of the cloud service, without the /api/v1 prefix
	BaseURL string

	// HTTPClient overrides the default http.Client
	HTTPClient *http.Client

	// RequestTimeout bounds each HTTP attempt (default: 10s)
	RequestTimeout time.Duration

	// MaxRetries is the number of extra attempts after a retryable failure
	// (default: 2)
	MaxRetries uint64

	// InitialBackoff is the first retry delay (default: 200ms)
	InitialBackoff time.Duration

	// RefreshWindow refreshes a session this close to expiry before use
	// (default: 1m)
	RefreshWindow time.Duration

	// Logger for client activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for baseURL.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:        baseURL,
		RequestTimeout: 10 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		RefreshWindow:  time.Minute,
		Logger:         slog.Default(),
	}
}

// Client is the HTTP implementation of API. Authenticated calls take their
// bearer token from the Auth it was built with; a 401 triggers one refresh and
// one replay of the request.
type Client struct {
	t    *transport
	auth *Auth
}

// NewClient creates a client sharing auth's session.
func NewClient(config *Config, auth *Auth) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("auth cannot be nil")
	}
	return &Client{t: newTransport(config), auth: auth}, nil
}

// Auth returns the authenticator backing the client.
func (c *Client) Auth() *Auth {
	return c.auth
}

// ListTasks fetches every task owned by the session.
func (c *Client) ListTasks(ctx context.Context) ([]*schema.Task, error) {
	var tasks []*schema.Task
	if err := c.authorized(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask creates task remotely and returns the stored version.
func (c *Client) CreateTask(ctx context.Context, task *schema.Task) (*schema.Task, error) {
	var out schema.Task
	if err := c.authorized(ctx, http.MethodPost, "/tasks", task, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask applies patch to the remote task.
func (c *Client) UpdateTask(ctx context.Context, id string, patch *schema.TaskPatch) (*schema.Task, error) {
	var out schema.Task
	if err := c.authorized(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask deletes the remote task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.authorized(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// BulkCreate creates tasks in one request.
func (c *Client) BulkCreate(ctx context.Context, tasks []*schema.Task) (*BulkResult, error) {
	var out BulkResult
	body := map[string]any{"tasks": tasks}
	if err := c.authorized(ctx, http.MethodPost, "/tasks/bulk", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks reachability without credentials and without retries.
func (c *Client) Health(ctx context.Context) error {
	return c.t.once(ctx, http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) authorized(ctx context.Context, method, path string, body, out any) error {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return err
	}

	err = c.t.do(ctx, method, path, token, body, out)
	if !apperrors.Is(err, apperrors.ErrAuth) {
		return err
	}

	c.t.logger.Info("credential rejected, refreshing", "path", path)
	sess, rerr := c.auth.Refresh(ctx)
	if rerr != nil {
		return apperrors.Wrap(apperrors.ErrAuth, "credential refresh failed", rerr)
	}
	return c.t.do(ctx, method, path, sess.Token, body, out)
}
