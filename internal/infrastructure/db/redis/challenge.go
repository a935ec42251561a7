package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatcenter/authkit/internal/core/domain"
)

// ChallengeStore keeps pending second-factor challenges in Redis so a
// challenge survives an authd restart and expires on its own.
// Key format: challenge:<token>, attempt counter at challenge:<token>:attempts.
type ChallengeStore struct {
	client *redis.Client
}

func NewChallengeStore(client *redis.Client) *ChallengeStore {
	return &ChallengeStore{client: client}
}

type storedChallenge struct {
	UserID    string    `json:"user_id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Create stores the challenge with the given TTL. The attempt counter shares
// the challenge's lifetime.
func (s *ChallengeStore) Create(ctx context.Context, ch *domain.Challenge, ttl time.Duration) error {
	raw, err := json.Marshal(storedChallenge{
		UserID:    ch.UserID,
		Code:      ch.Code,
		CreatedAt: ch.CreatedAt,
		ExpiresAt: ch.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("challenge marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(ch.Token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("challenge set: %w", err)
	}
	return nil
}

// Get returns the pending challenge, or ErrInvalidCode when the token is
// unknown or already expired.
func (s *ChallengeStore) Get(ctx context.Context, token string) (*domain.Challenge, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("challenge get: %w", err)
	}

	var sc storedChallenge
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("challenge unmarshal: %w", err)
	}

	attempts, err := s.client.Get(ctx, s.attemptKey(token)).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("challenge attempts: %w", err)
	}

	return &domain.Challenge{
		Token:     token,
		UserID:    sc.UserID,
		Code:      sc.Code,
		Attempts:  attempts,
		CreatedAt: sc.CreatedAt,
		ExpiresAt: sc.ExpiresAt,
	}, nil
}

// RecordAttempt increments the wrong-code counter and returns the new total.
func (s *ChallengeStore) RecordAttempt(ctx context.Context, token string) (int, error) {
	key := s.attemptKey(token)

	ttl, err := s.client.TTL(ctx, s.key(token)).Result()
	if err != nil {
		return 0, fmt.Errorf("challenge ttl: %w", err)
	}
	if ttl <= 0 {
		return 0, domain.ErrInvalidCode
	}

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("challenge attempt incr: %w", err)
	}
	return int(incr.Val()), nil
}

// Delete consumes the challenge and its attempt counter.
func (s *ChallengeStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token), s.attemptKey(token)).Err(); err != nil {
		return fmt.Errorf("challenge delete: %w", err)
	}
	return nil
}

func (s *ChallengeStore) key(token string) string {
	return fmt.Sprintf("challenge:%s", token)
}

func (s *ChallengeStore) attemptKey(token string) string {
	return fmt.Sprintf("challenge:%s:attempts", token)
}
