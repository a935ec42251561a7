package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/chatcenter/authkit/internal/core/domain"
	"github.com/chatcenter/authkit/internal/core/ports"
)

const (
	defaultAccessTTL    = 15 * time.Minute
	defaultRefreshTTL   = 720 * time.Hour
	defaultChallengeTTL = 5 * time.Minute
	maxLoginFailures    = 5
	maxCodeAttempts     = 3
)

// Options tunes the AuthService. Zero values fall back to defaults.
type Options struct {
	JWTSecret    string
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	ChallengeTTL time.Duration
}

// AuthService is the server-side implementation of the authentication
// contract (ports.Authenticator): password login with lockout, the
// second-factor challenge flow, single-use refresh rotation, identity
// resolution, and logout revocation.
type AuthService struct {
	users      ports.UserRepository
	lockouts   ports.LockoutStore
	challenges ports.ChallengeStore
	refreshes  ports.RefreshTokenStore
	codes      ports.CodeSender
	audit      ports.AuditSink
	log        zerolog.Logger

	jwtSecret    string
	issuer       string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	challengeTTL time.Duration
}

func NewAuthService(
	users ports.UserRepository,
	lockouts ports.LockoutStore,
	challenges ports.ChallengeStore,
	refreshes ports.RefreshTokenStore,
	codes ports.CodeSender,
	audit ports.AuditSink,
	log zerolog.Logger,
	opts Options,
) *AuthService {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = defaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = defaultRefreshTTL
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = defaultChallengeTTL
	}
	if opts.Issuer == "" {
		opts.Issuer = "authkit"
	}
	return &AuthService{
		users:        users,
		lockouts:     lockouts,
		challenges:   challenges,
		refreshes:    refreshes,
		codes:        codes,
		audit:        audit,
		log:          log,
		jwtSecret:    opts.JWTSecret,
		issuer:       opts.Issuer,
		accessTTL:    opts.AccessTTL,
		refreshTTL:   opts.RefreshTTL,
		challengeTTL: opts.ChallengeTTL,
	}
}

// Login verifies email/password. Accounts with a second factor enabled
// receive a challenge token instead of credentials; no tokens exist until
// the code is verified.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Indistinguishable from a wrong password on purpose.
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if err := s.checkLockout(ctx, user.ID); err != nil {
		s.record(user.ID, user.Email, domain.AuditLogin, false, "account locked")
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.registerFailure(ctx, user)
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.lockouts.Reset(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Msg("failed to reset lockout counter")
	}

	if user.TwoFactorEnabled {
		token, err := s.issueChallenge(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		s.record(user.ID, user.Email, domain.AuditLoginChallenge, true, "")
		return &ports.LoginResult{TwoFactorRequired: true, ChallengeToken: token}, nil
	}

	creds, err := s.issueCredentials(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.record(user.ID, user.Email, domain.AuditLogin, true, "")
	return &ports.LoginResult{Identity: user.Identity(), Credentials: creds}, nil
}

// VerifyCode completes a pending second-factor challenge. After
// maxCodeAttempts wrong codes the challenge is destroyed and the account
// enters the temporary lockout.
func (s *AuthService) VerifyCode(ctx context.Context, challengeToken, code string) (*ports.LoginResult, error) {
	if challengeToken == "" || code == "" {
		return nil, domain.ErrInvalidCode
	}

	challenge, err := s.challenges.Get(ctx, challengeToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCode) {
			return nil, domain.ErrInvalidCode
		}
		return nil, fmt.Errorf("verify code: %w", err)
	}
	if challenge.Expired(time.Now().UTC()) {
		_ = s.challenges.Delete(ctx, challengeToken)
		return nil, domain.ErrInvalidCode
	}

	if err := s.checkLockout(ctx, challenge.UserID); err != nil {
		return nil, err
	}

	if !codesEqual(challenge.Code, code) {
		attempts, attErr := s.challenges.RecordAttempt(ctx, challengeToken)
		if attErr != nil {
			s.log.Warn().Err(attErr).Msg("failed to record challenge attempt")
		}
		if attempts >= maxCodeAttempts {
			_ = s.challenges.Delete(ctx, challengeToken)
			if lockErr := s.lockouts.Lock(ctx, challenge.UserID); lockErr != nil {
				s.log.Error().Err(lockErr).Msg("failed to lock account")
			}
			s.record(challenge.UserID, "", domain.AuditLockout, false, "second factor attempts exhausted")
			return nil, domain.ErrAccountLocked
		}
		s.record(challenge.UserID, "", domain.AuditVerifyCode, false, "wrong code")
		return nil, domain.ErrInvalidCode
	}

	if err := s.challenges.Delete(ctx, challengeToken); err != nil {
		s.log.Warn().Err(err).Msg("failed to consume challenge")
	}

	user, err := s.users.FindByID(ctx, challenge.UserID)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}

	if err := s.lockouts.Reset(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Msg("failed to reset lockout counter")
	}

	creds, err := s.issueCredentials(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}

	s.record(user.ID, user.Email, domain.AuditVerifyCode, true, "")
	return &ports.LoginResult{Identity: user.Identity(), Credentials: creds}, nil
}

// Refresh exchanges a refresh token for a new pair. Tokens are single-use:
// the stored hash is consumed atomically, so a replayed or concurrently
// exchanged token fails with ErrInvalidRefreshToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.Credentials, error) {
	if refreshToken == "" {
		return nil, domain.ErrInvalidRefreshToken
	}

	sess, err := s.refreshes.Consume(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRefreshToken) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		return nil, domain.ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	creds, err := s.issueCredentials(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	s.record(user.ID, user.Email, domain.AuditRefresh, true, "")
	return creds, nil
}

// FetchIdentity resolves the account behind a valid access token. Roles and
// permissions come from the repository, not the claims, so revocations take
// effect on the next fetch instead of at the token's natural expiry.
func (s *AuthService) FetchIdentity(ctx context.Context, accessToken string) (*domain.Identity, error) {
	claims, err := s.parseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("fetch identity: %w", err)
	}
	return user.Identity(), nil
}

// Logout revokes the refresh session tied to the access token. Best-effort:
// the client clears local state regardless of the outcome here.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.parseAccessToken(accessToken)
	if err != nil {
		return err
	}

	if claims.SessionID != "" {
		if err := s.refreshes.RevokeSession(ctx, claims.SessionID); err != nil {
			s.log.Warn().Err(err).Msg("failed to revoke refresh session")
		}
	}

	s.record(claims.Subject, claims.Email, domain.AuditLogout, true, "")
	return nil
}

// CreateUserInput carries the fields for provisioning a console account.
type CreateUserInput struct {
	Name             string
	Email            string
	Password         string
	Roles            []string
	Permissions      []string
	TwoFactorEnabled bool
}

// CreateUser provisions a new account. The password is bcrypt-hashed before
// it reaches the repository; the plaintext is never persisted.
func (s *AuthService) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	user, err := s.users.Create(ctx, &domain.User{
		Name:             in.Name,
		Email:            in.Email,
		PasswordHash:     string(hash),
		Roles:            in.Roles,
		Permissions:      in.Permissions,
		TwoFactorEnabled: in.TwoFactorEnabled,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *AuthService) checkLockout(ctx context.Context, key string) error {
	failures, err := s.lockouts.Failures(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("lockout check failed, allowing attempt")
		return nil
	}
	if failures >= maxLoginFailures {
		return domain.ErrAccountLocked
	}
	return nil
}

func (s *AuthService) registerFailure(ctx context.Context, user *domain.User) {
	count, err := s.lockouts.RecordFailure(ctx, user.ID)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to record login failure")
		return
	}
	if count == maxLoginFailures {
		s.record(user.ID, user.Email, domain.AuditLockout, false, "failure limit reached")
		return
	}
	s.record(user.ID, user.Email, domain.AuditLogin, false, "wrong password")
}

func (s *AuthService) record(userID, email, action string, success bool, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(domain.AuditEvent{
		UserID:    userID,
		Email:     email,
		Action:    action,
		Success:   success,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}
