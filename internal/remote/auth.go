package remote

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// SessionStore persists the current session between runs.
type SessionStore interface {
	Session() (*schema.Session, error)
	SaveSession(sess *schema.Session) error
}

// Auth is the HTTP Authenticator. Sessions it obtains are written through to
// its SessionStore.
type Auth struct {
	t      *transport
	store  SessionStore
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	session *schema.Session
}

// NewAuth creates an authenticator and loads the persisted session, if any.
func NewAuth(config *Config, store SessionStore) (*Auth, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}

	sess, err := store.Session()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	a := &Auth{
		t:       newTransport(config),
		store:   store,
		window:  config.RefreshWindow,
		now:     time.Now,
		session: sess,
	}
	if a.window <= 0 {
		a.window = time.Minute
	}
	return a, nil
}

// Session returns a copy of the current session, or nil.
func (a *Auth) Session() *schema.Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// Usable reports whether there is a session that is valid now or can be
// refreshed.
func (a *Auth) Usable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil && (a.session.Valid(a.now()) || a.session.RefreshToken != "")
}

// Token returns a bearer token, refreshing the session first when it is
// about to expire.
func (a *Auth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()

	if sess == nil {
		return "", apperrors.New(apperrors.ErrAuth, "no session")
	}
	if !sess.ExpiresWithin(a.now(), a.window) {
		return sess.Token, nil
	}
	if sess.RefreshToken == "" {
		if sess.Valid(a.now()) {
			return sess.Token, nil
		}
		return "", apperrors.New(apperrors.ErrAuth, "session expired")
	}

	fresh, err := a.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return fresh.Token, nil
}

// GuestSession requests an anonymous session and makes it current.
func (a *Auth) GuestSession(ctx context.Context) (*schema.Session, error) {
	var sess schema.Session
	if err := a.t.do(ctx, http.MethodPost, "/auth/guest", "", struct{}{}, &sess); err != nil {
		return nil, err
	}
	sess.Guest = true
	return a.set(&sess)
}

// Refresh exchanges the current refresh token for a new session.
func (a *Auth) Refresh(ctx context.Context) (*schema.Session, error) {
	a.mu.Lock()
	cur := a.session
	a.mu.Unlock()

	if cur == nil || cur.RefreshToken == "" {
		return nil, apperrors.New(apperrors.ErrAuth, "no refresh token")
	}

	var sess schema.Session
	if err := a.t.do(ctx, http.MethodPost, "/auth/refresh", "", RefreshRequest{RefreshToken: cur.RefreshToken}, &sess); err != nil {
		return nil, err
	}
	return a.set(&sess)
}

// Login exchanges credentials for a full account session. A current guest
// session is presented along with the credentials so the service can transfer
// the guest's tasks to the account.
func (a *Auth) Login(ctx context.Context, username, password string) (*schema.Session, error) {
	a.mu.Lock()
	var guestToken string
	if a.session != nil && a.session.Guest && a.session.Valid(a.now()) {
		guestToken = a.session.Token
	}
	a.mu.Unlock()

	var sess schema.Session
	if err := a.t.do(ctx, http.MethodPost, "/auth/login", guestToken, Credentials{Username: username, Password: password}, &sess); err != nil {
		return nil, err
	}
	sess.Guest = false
	return a.set(&sess)
}

// Logout forgets the current session.
func (a *Auth) Logout() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.SaveSession(nil); err != nil {
		return err
	}
	a.session = nil
	return nil
}

func (a *Auth) set(sess *schema.Session) (*schema.Session, error) {
	if sess.Token == "" {
		return nil, apperrors.New(apperrors.ErrAuth, "server returned an empty token")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.SaveSession(sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	a.session = sess
	out := *sess
	return &out, nil
}
