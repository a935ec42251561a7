package domain

import "time"

// Challenge is a pending second-factor verification. It exists between a
// successful password check and a successful code verification; no
// credentials are issued while one is outstanding. Code delivery is handled
// by a CodeSender collaborator, never stored alongside tokens.
type Challenge struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Code      string    `json:"-"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is past its expiry at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// RefreshSession is the server-side record behind an outstanding refresh
// token. The token itself is never stored; the session is keyed by its
// sha256 hash and consumed atomically on exchange (single-use rotation).
type RefreshSession struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
