package cloud

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

const sessionKey = "session"

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGuest(c *gin.Context) {
	s.mu.Lock()
	sess := s.issueLocked("guest-"+uuid.NewString(), true)
	s.mu.Unlock()

	c.JSON(http.StatusOK, s.view(sess))
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req remote.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		abort(c, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token is required")
		return
	}

	s.mu.Lock()
	old, ok := s.refreshes[req.RefreshToken]
	var sess *session
	if ok {
		delete(s.refreshes, req.RefreshToken)
		delete(s.sessions, old.token)
		sess = s.issueLocked(old.userID, old.guest)
	}
	s.mu.Unlock()

	if !ok {
		abort(c, http.StatusUnauthorized, "AUTH_ERROR", "unknown refresh token")
		return
	}
	c.JSON(http.StatusOK, s.view(sess))
}

// handleLogin issues an account session. When the request carries a guest
// bearer token, the guest's tasks are transferred to the account.
func (s *Server) handleLogin(c *gin.Context) {
	var creds remote.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		abort(c, http.StatusBadRequest, "VALIDATION_ERROR", "username and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts != nil {
		if pw, ok := s.accounts[creds.Username]; !ok || pw != creds.Password {
			abort(c, http.StatusUnauthorized, "AUTH_ERROR", "invalid credentials")
			return
		}
	}

	userID := "user-" + creds.Username
	if guest, ok := s.sessions[bearer(c)]; ok && guest.guest {
		for _, t := range s.tasks {
			if t.OwnerID == guest.userID {
				t.OwnerID = userID
				t.Touch(s.now())
			}
		}
	}

	sess := s.issueLocked(userID, false)
	c.JSON(http.StatusOK, s.view(sess))
}

func (s *Server) requireSession(c *gin.Context) {
	s.mu.Lock()
	sess, ok := s.sessions[bearer(c)]
	if ok && !s.now().Before(sess.expiresAt) {
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		abort(c, http.StatusUnauthorized, "AUTH_ERROR", "missing or expired token")
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func (s *Server) issueLocked(userID string, guest bool) *session {
	sess := &session{
		token:     uuid.NewString(),
		refresh:   uuid.NewString(),
		userID:    userID,
		guest:     guest,
		expiresAt: s.now().Add(s.ttl),
	}
	s.sessions[sess.token] = sess
	s.refreshes[sess.refresh] = sess
	return sess
}

func (s *Server) view(sess *session) schema.Session {
	return schema.Session{
		Token:        sess.token,
		RefreshToken: sess.refresh,
		UserID:       sess.userID,
		Guest:        sess.guest,
		ExpiresAt:    sess.expiresAt.UTC(),
	}
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		return tok
	}
	return ""
}

func currentSession(c *gin.Context) *session {
	return c.MustGet(sessionKey).(*session)
}
