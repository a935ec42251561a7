// Package restclient implements the authentication collaborator contract
// over authd's JSON API.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatcenter/authkit/internal/core/domain"
	"github.com/chatcenter/authkit/internal/core/ports"
)

const defaultTimeout = 15 * time.Second

// Client talks to the auth server. It implements ports.Authenticator.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the given base URL. When httpClient is nil a
// default with a bounded timeout is used. The client deliberately does NOT
// route through the console's request interceptor: refresh and login calls
// must not themselves trigger token refreshes.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	AccessToken       string           `json:"access_token,omitempty"`
	RefreshToken      string           `json:"refresh_token,omitempty"`
	TwoFactorRequired bool             `json:"two_factor_required,omitempty"`
	ChallengeToken    string           `json:"challenge_token,omitempty"`
	User              *domain.Identity `json:"user,omitempty"`
}

func (r *sessionResponse) result() *ports.LoginResult {
	if r.TwoFactorRequired {
		return &ports.LoginResult{TwoFactorRequired: true, ChallengeToken: r.ChallengeToken}
	}
	return &ports.LoginResult{
		Identity:    r.User,
		Credentials: &domain.Credentials{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken},
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	var out sessionResponse
	err := c.post(ctx, "/auth/login", loginRequest{Email: email, Password: password}, "", &out)
	if err != nil {
		return nil, c.mapError(err, domain.ErrInvalidCredentials)
	}
	return out.result(), nil
}

func (c *Client) VerifyCode(ctx context.Context, challengeToken, code string) (*ports.LoginResult, error) {
	var out sessionResponse
	err := c.post(ctx, "/auth/2fa/verify", verifyRequest{ChallengeToken: challengeToken, Code: code}, "", &out)
	if err != nil {
		return nil, c.mapError(err, domain.ErrInvalidCode)
	}
	return out.result(), nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.Credentials, error) {
	var out sessionResponse
	err := c.post(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, "", &out)
	if err != nil {
		return nil, c.mapError(err, domain.ErrInvalidRefreshToken)
	}
	return &domain.Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (*domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("restclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var identity domain.Identity
	if err := c.do(req, &identity); err != nil {
		return nil, c.mapError(err, domain.ErrUnauthorized)
	}
	return &identity, nil
}

func (c *Client) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("restclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	if err := c.do(req, nil); err != nil {
		return c.mapError(err, domain.ErrUnauthorized)
	}
	return nil
}

// statusError carries a non-2xx response through to mapError.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("restclient: server returned %d: %s", e.code, e.message)
}

func (c *Client) post(ctx context.Context, path string, payload any, bearer string, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("restclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("restclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("restclient: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &envelope)
		return &statusError{code: resp.StatusCode, message: envelope.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("restclient: decode response: %w", err)
	}
	return nil
}

// mapError converts transport-level failures into the domain taxonomy.
// unauthorized is the endpoint-specific meaning of a 401.
func (c *Client) mapError(err error, unauthorized error) error {
	se, ok := err.(*statusError)
	if !ok {
		return err
	}
	switch se.code {
	case http.StatusUnauthorized:
		return unauthorized
	case http.StatusLocked:
		return domain.ErrAccountLocked
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return domain.ErrTimeout
	default:
		return err
	}
}
