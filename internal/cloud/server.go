// Package cloud is an in-memory implementation of the remote task service.
//
// It serves the same HTTP contract the remote client speaks and is used for
// local development (taskd cloud serve) and as the remote in tests. It also
// supports simple fault injection so tests can exercise outages and retries.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Config holds configuration for the server.
type Config struct {
	// Accounts maps username to password. Nil accepts any non-empty pair.
	Accounts map[string]string

	// TokenTTL is the lifetime of issued access tokens (default: 1h)
	TokenTTL time.Duration

	// Logger for request logging
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TokenTTL: time.Hour,
		Logger:   slog.Default(),
	}
}

// Stats counts requests that reached a task handler.
type Stats struct {
	Lists   int
	Creates int
	Updates int
	Deletes int
	Bulk    int
}

type session struct {
	token     string
	refresh   string
	userID    string
	guest     bool
	expiresAt time.Time
}

// Server holds the in-memory state and the gin router.
type Server struct {
	router *gin.Engine
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	accounts  map[string]string
	tasks     map[string]*schema.Task
	order     []string
	sessions  map[string]*session // access token -> session
	refreshes map[string]*session // refresh token -> session
	stats     Stats

	unavailable bool
	failMethod  string
	failNext    int
	failStatus  int
}

// New creates a server with its routes registered.
func New(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		ttl:       config.TokenTTL,
		logger:    config.Logger,
		now:       time.Now,
		accounts:  config.Accounts,
		tasks:     make(map[string]*schema.Task),
		sessions:  make(map[string]*session),
		refreshes: make(map[string]*session),
	}
	if s.ttl <= 0 {
		s.ttl = time.Hour
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests, s.faults)

	api := router.Group(remote.APIPrefix)
	{
		api.GET("/health", s.handleHealth)

		auth := api.Group("/auth")
		auth.POST("/guest", s.handleGuest)
		auth.POST("/refresh", s.handleRefresh)
		auth.POST("/login", s.handleLogin)

		tasks := api.Group("/tasks", s.requireSession)
		tasks.GET("", s.handleList)
		tasks.POST("", s.handleCreate)
		tasks.POST("/bulk", s.handleBulk)
		tasks.PATCH("/:id", s.handleUpdate)
		tasks.DELETE("/:id", s.handleDelete)
	}

	s.router = router
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("cloud server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// SetAvailable toggles a simulated outage. While unavailable every endpoint,
// including health, answers 503.
func (s *Server) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = !available
}

// FailNext makes the next n task requests with the given method answer with
// status. An empty method matches every method.
func (s *Server) FailNext(method string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMethod = method
	s.failNext = n
	s.failStatus = status
}

// ExpireSessions invalidates every access token while keeping refresh tokens.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, sess := range s.sessions {
		sess.expiresAt = time.Time{}
		delete(s.sessions, tok)
	}
}

// Stats returns request counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Tasks returns copies of the tasks owned by ownerID in creation order.
// An empty ownerID returns every task.
func (s *Server) Tasks(ownerID string) []*schema.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ownerID)
}

// Put stores task directly, bypassing validation of ownership. Used to seed
// remote-side changes.
func (s *Server) Put(task *schema.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		s.order = append(s.order, task.ID)
	}
	c := task.Clone()
	c.LocalOnly = false
	s.tasks[task.ID] = c
}

// Remove deletes a task directly.
func (s *Server) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Server) listLocked(ownerID string) []*schema.Task {
	out := make([]*schema.Task, 0, len(s.order))
	for _, id := range s.order {
		t := s.tasks[id]
		if ownerID == "" || t.OwnerID == ownerID {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s *Server) removeLocked(id string) {
	if _, ok := s.tasks[id]; !ok {
		return
	}
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

func (s *Server) faults(c *gin.Context) {
	s.mu.Lock()
	unavailable := s.unavailable
	status := 0
	if !unavailable && s.failNext > 0 && strings.HasPrefix(c.FullPath(), remote.APIPrefix+"/tasks") &&
		(s.failMethod == "" || s.failMethod == c.Request.Method) {
		s.failNext--
		status = s.failStatus
	}
	s.mu.Unlock()

	if unavailable {
		abort(c, http.StatusServiceUnavailable, "UNAVAILABLE", "service unavailable")
		return
	}
	if status != 0 {
		abort(c, status, "INJECTED", "injected failure")
		return
	}
	c.Next()
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, remote.ErrorBody{Code: code, Error: msg})
}
