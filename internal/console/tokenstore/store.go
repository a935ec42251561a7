// Package tokenstore is the single source of truth for the console's current
// credential pair. It persists to client-durable storage and exposes expiry
// inspection without network access. Token contents are never logged.
package tokenstore

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chatcenter/authkit/internal/core/domain"
)

// Store holds the current credential pair. Set replaces both tokens
// atomically; no reader ever observes one token updated and not the other.
// Only the refresh coordinator and the state machine's login/logout
// transitions mutate it.
type Store interface {
	// Get returns the current pair and whether one is present.
	Get() (domain.Credentials, bool)
	Set(pair domain.Credentials) error
	Clear() error
}

// Memory is an in-process Store, used by the web console (durable storage is
// the embedding page's concern) and by tests.
type Memory struct {
	mu      sync.RWMutex
	pair    domain.Credentials
	present bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get() (domain.Credentials, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair, m.present
}

func (m *Memory) Set(pair domain.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = pair
	m.present = true
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = domain.Credentials{}
	m.present = false
	return nil
}

// IsExpired reports whether the access token's embedded exp claim has passed,
// treating now+leeway as the cutoff so tokens about to lapse mid-request are
// refreshed early. Malformed tokens and tokens without an exp claim are
// expired (fail-closed). The signature is deliberately not verified here:
// only the server can do that, and the client needs nothing but the expiry.
func IsExpired(token string, leeway time.Duration) bool {
	if token == "" {
		return true
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}

	return !time.Now().Add(leeway).Before(exp.Time)
}
