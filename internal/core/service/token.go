package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chatcenter/authkit/internal/core/domain"
)

const parseLeeway = 5 * time.Second

// issueCredentials mints a fresh pair: a signed access JWT carrying the
// identity claims, and a random refresh secret whose sha256 hash is stored
// server-side for the session's lifetime.
func (s *AuthService) issueCredentials(ctx context.Context, user *domain.User) (*domain.Credentials, error) {
	now := time.Now().UTC()
	sessionID := uuid.NewString()

	claims := domain.AccessClaims{
		Name:             user.Name,
		Email:            user.Email,
		Roles:            user.Roles,
		Permissions:      user.Permissions,
		TwoFactorEnabled: user.TwoFactorEnabled,
		SessionID:        sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := randomSecret(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	sess := &domain.RefreshSession{
		SessionID: sessionID,
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.refreshes.Save(ctx, hashRefreshToken(refresh), sess, s.refreshTTL); err != nil {
		return nil, fmt.Errorf("store refresh session: %w", err)
	}

	return &domain.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// issueChallenge creates a pending second-factor challenge and hands the
// code to the delivery collaborator. The code never appears in logs or in
// the login response.
func (s *AuthService) issueChallenge(ctx context.Context, user *domain.User) (string, error) {
	code, err := randomCode(6)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	now := time.Now().UTC()
	challenge := &domain.Challenge{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.challengeTTL),
	}

	if err := s.challenges.Create(ctx, challenge, s.challengeTTL); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}

	if s.codes != nil {
		if err := s.codes.Send(ctx, user.Email, code); err != nil {
			s.log.Error().Err(err).Msg("failed to deliver verification code")
		}
	}

	return challenge.Token, nil
}

// parseAccessToken validates signature, algorithm, issuer, and expiry.
// Any failure collapses to ErrUnauthorized.
func (s *AuthService) parseAccessToken(tokenStr string) (*domain.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &domain.AccessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(s.jwtSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(parseLeeway),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*domain.AccessClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

func hashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// randomCode produces a zero-padded numeric one-time code.
func randomCode(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
