package ports

import (
	"context"

	"github.com/chatcenter/authkit/internal/core/domain"
)

// LoginResult is the outcome of a successful Login or VerifyCode call.
// Either Credentials are issued, or a second factor is required and
// ChallengeToken references the pending challenge (no tokens exist yet).
type LoginResult struct {
	Identity          *domain.Identity
	Credentials       *domain.Credentials
	TwoFactorRequired bool
	ChallengeToken    string
}

// Authenticator is the contract between the console core and the
// authentication backend. The server implements it directly
// (internal/core/service); the console consumes it over HTTP
// (internal/console/restclient).
type Authenticator interface {
	// Login verifies email/password. Fails with ErrInvalidCredentials or
	// ErrAccountLocked.
	Login(ctx context.Context, email, password string) (*LoginResult, error)

	// VerifyCode completes a pending second-factor challenge. Fails with
	// ErrInvalidCode or ErrAccountLocked.
	VerifyCode(ctx context.Context, challengeToken, code string) (*LoginResult, error)

	// Refresh exchanges a refresh token for a new credential pair. The old
	// token is consumed (single-use rotation). Fails with
	// ErrInvalidRefreshToken.
	Refresh(ctx context.Context, refreshToken string) (*domain.Credentials, error)

	// FetchIdentity resolves the identity behind an access token. Fails with
	// ErrUnauthorized.
	FetchIdentity(ctx context.Context, accessToken string) (*domain.Identity, error)

	// Logout revokes the session behind the access token. Best-effort:
	// callers clear local state regardless of the result.
	Logout(ctx context.Context, accessToken string) error
}
