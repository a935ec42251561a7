package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatcenter/authkit/internal/core/domain"
)

// RefreshTokenStore holds refresh sessions keyed by the sha256 hash of the
// refresh token; the plaintext secret is never stored server-side.
// Key format: refresh:<hash> holding the session, and session:<session_id>
// pointing back at the hash so logout can revoke by session.
type RefreshTokenStore struct {
	client *redis.Client
}

func NewRefreshTokenStore(client *redis.Client) *RefreshTokenStore {
	return &RefreshTokenStore{client: client}
}

// Save stores the session under the token hash for ttl, plus the reverse
// session index with the same lifetime.
func (s *RefreshTokenStore) Save(ctx context.Context, hash string, sess *domain.RefreshSession, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("refresh marshal: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.tokenKey(hash), raw, ttl)
	pipe.Set(ctx, s.sessionKey(sess.SessionID), hash, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh save: %w", err)
	}
	return nil
}

// Consume atomically fetches and deletes the session for the hash. GETDEL
// makes the token single-use: two concurrent exchanges of the same token
// cannot both succeed.
func (s *RefreshTokenStore) Consume(ctx context.Context, hash string) (*domain.RefreshSession, error) {
	raw, err := s.client.GetDel(ctx, s.tokenKey(hash)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("refresh consume: %w", err)
	}

	var sess domain.RefreshSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("refresh unmarshal: %w", err)
	}

	if sess.SessionID != "" {
		_ = s.client.Del(ctx, s.sessionKey(sess.SessionID)).Err()
	}
	return &sess, nil
}

// RevokeSession deletes the refresh token tied to the session, if any.
// Unknown sessions are not an error: logout is idempotent.
func (s *RefreshTokenStore) RevokeSession(ctx context.Context, sessionID string) error {
	hash, err := s.client.GetDel(ctx, s.sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh revoke: %w", err)
	}
	if err := s.client.Del(ctx, s.tokenKey(hash)).Err(); err != nil {
		return fmt.Errorf("refresh revoke: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) tokenKey(hash string) string {
	return fmt.Sprintf("refresh:%s", hash)
}

func (s *RefreshTokenStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
