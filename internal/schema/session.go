package schema

import "time"

// Session is the credential the remote API expects as a bearer token.
type Session struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	Guest        bool      `json:"guest"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the session has a token that has not expired.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.Token != "" && now.Before(s.ExpiresAt)
}

// ExpiresWithin reports whether the session expires in less than d.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return s == nil || !now.Add(d).Before(s.ExpiresAt)
}

// IsAccount reports whether this is a fully authenticated, non-guest session.
func (s *Session) IsAccount(now time.Time) bool {
	return s.Valid(now) && !s.Guest
}
