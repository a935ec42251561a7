package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLockoutWindow = 15 * time.Minute

// LockoutStore counts consecutive login failures per account in Redis.
// Key format: lockout:<user_id>. The counter expires after the lockout
// window, so a locked account unlocks itself without operator action.
type LockoutStore struct {
	client *redis.Client
	window time.Duration
	limit  int
}

// NewLockoutStore creates a LockoutStore. window <= 0 falls back to the
// default 15 minute window.
func NewLockoutStore(client *redis.Client, window time.Duration, limit int) *LockoutStore {
	if window <= 0 {
		window = defaultLockoutWindow
	}
	return &LockoutStore{client: client, window: window, limit: limit}
}

// Failures returns the current failure count for the account.
func (s *LockoutStore) Failures(ctx context.Context, userID string) (int, error) {
	n, err := s.client.Get(ctx, s.key(userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lockout get: %w", err)
	}
	return n, nil
}

// RecordFailure increments the failure counter and refreshes the window,
// returning the new count.
func (s *LockoutStore) RecordFailure(ctx context.Context, userID string) (int, error) {
	key := s.key(userID)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("lockout incr: %w", err)
	}
	return int(incr.Val()), nil
}

// Lock pins the counter at the lockout limit for a full window, used when
// the second-factor attempt budget is exhausted.
func (s *LockoutStore) Lock(ctx context.Context, userID string) error {
	if err := s.client.Set(ctx, s.key(userID), s.limit, s.window).Err(); err != nil {
		return fmt.Errorf("lockout set: %w", err)
	}
	return nil
}

// Reset clears the failure counter after a successful authentication.
func (s *LockoutStore) Reset(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("lockout reset: %w", err)
	}
	return nil
}

func (s *LockoutStore) key(userID string) string {
	return fmt.Sprintf("lockout:%s", userID)
}
