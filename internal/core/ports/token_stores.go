package ports

import (
	"context"
	"time"

	"github.com/chatcenter/authkit/internal/core/domain"
)

// LockoutStore tracks consecutive authentication failures per account.
// Counters expire on their own after the lockout window.
type LockoutStore interface {
	// Failures returns the current consecutive-failure count for the key.
	Failures(ctx context.Context, key string) (int, error)
	// RecordFailure increments the counter and returns the new count.
	RecordFailure(ctx context.Context, key string) (int, error)
	// Lock forces the account into the locked state for the window,
	// regardless of the current count.
	Lock(ctx context.Context, key string) error
	// Reset clears the counter after a successful authentication.
	Reset(ctx context.Context, key string) error
}

// ChallengeStore holds pending second-factor challenges, keyed by their
// opaque challenge token.
type ChallengeStore interface {
	Create(ctx context.Context, ch *domain.Challenge, ttl time.Duration) error
	Get(ctx context.Context, token string) (*domain.Challenge, error)
	// RecordAttempt increments the failed-attempt count and returns it.
	RecordAttempt(ctx context.Context, token string) (int, error)
	// Delete removes the challenge (consumed on success or attempt limit).
	Delete(ctx context.Context, token string) error
}

// RefreshTokenStore holds outstanding refresh sessions keyed by the sha256
// hash of the refresh secret. Refresh tokens are single-use: Consume removes
// the session atomically so a hash can be exchanged at most once.
type RefreshTokenStore interface {
	Save(ctx context.Context, hash string, sess *domain.RefreshSession, ttl time.Duration) error
	Consume(ctx context.Context, hash string) (*domain.RefreshSession, error)
	// RevokeSession removes the session by its session id (logout path).
	RevokeSession(ctx context.Context, sessionID string) error
}
