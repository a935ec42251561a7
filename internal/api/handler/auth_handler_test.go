package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/chatcenter/authkit/internal/api/middleware"
	"github.com/chatcenter/authkit/internal/core/domain"
	"github.com/chatcenter/authkit/internal/core/ports"
	"github.com/chatcenter/authkit/internal/core/service"
)

type stubAuthService struct {
	loginFn      func(ctx context.Context, email, password string) (*ports.LoginResult, error)
	verifyFn     func(ctx context.Context, challengeToken, code string) (*ports.LoginResult, error)
	refreshFn    func(ctx context.Context, refreshToken string) (*domain.Credentials, error)
	fetchFn      func(ctx context.Context, accessToken string) (*domain.Identity, error)
	logoutFn     func(ctx context.Context, accessToken string) error
	createUserFn func(ctx context.Context, in service.CreateUserInput) (*domain.User, error)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAuthService) VerifyCode(ctx context.Context, challengeToken, code string) (*ports.LoginResult, error) {
	return s.verifyFn(ctx, challengeToken, code)
}

func (s *stubAuthService) Refresh(ctx context.Context, refreshToken string) (*domain.Credentials, error) {
	return s.refreshFn(ctx, refreshToken)
}

func (s *stubAuthService) FetchIdentity(ctx context.Context, accessToken string) (*domain.Identity, error) {
	return s.fetchFn(ctx, accessToken)
}

func (s *stubAuthService) Logout(ctx context.Context, accessToken string) error {
	return s.logoutFn(ctx, accessToken)
}

func (s *stubAuthService) CreateUser(ctx context.Context, in service.CreateUserInput) (*domain.User, error) {
	return s.createUserFn(ctx, in)
}

func newTestContext(t *testing.T, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	e.Validator = NewValidator()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAuthHandler_Login_Success(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			if email != "alice@example.com" || password != "secret" {
				t.Fatalf("unexpected args: %s %s", email, password)
			}
			return &ports.LoginResult{
				Identity:    &domain.Identity{ID: "u1", Email: email},
				Credentials: &domain.Credentials{AccessToken: "a1", RefreshToken: "r1"},
			}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","password":"secret"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["access_token"] != "a1" || resp["refresh_token"] != "r1" {
		t.Fatalf("token pair missing: %+v", resp)
	}
	user, ok := resp["user"].(map[string]any)
	if !ok || user["id"] != "u1" {
		t.Fatalf("unexpected user payload: %+v", resp)
	}
}

func TestAuthHandler_Login_TwoFactorChallenge(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return &ports.LoginResult{TwoFactorRequired: true, ChallengeToken: "ch1"}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/auth/login",
		`{"email":"erin@example.com","password":"secret"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["two_factor_required"] != true || resp["challenge_token"] != "ch1" {
		t.Fatalf("challenge not surfaced: %+v", resp)
	}
	if _, ok := resp["access_token"]; ok {
		t.Fatalf("no tokens may be issued with a pending challenge")
	}
}

func TestAuthHandler_Login_InvalidCredentialsPassedThrough(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return nil, domain.ErrInvalidCredentials
		},
	}
	h := NewAuthHandler(stub)

	c, _ := newTestContext(t, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","password":"bad"}`)
	if err := h.Login(c); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthHandler_Login_InvalidPayload(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	h := NewAuthHandler(stub)

	c, _ := newTestContext(t, http.MethodPost, "/auth/login", `{"email":"not-an-email"}`)
	err := h.Login(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestAuthHandler_Verify2FA_Success(t *testing.T) {
	stub := &stubAuthService{
		verifyFn: func(ctx context.Context, challengeToken, code string) (*ports.LoginResult, error) {
			if challengeToken != "ch1" || code != "123456" {
				t.Fatalf("unexpected args: %s %s", challengeToken, code)
			}
			return &ports.LoginResult{
				Identity:    &domain.Identity{ID: "u1"},
				Credentials: &domain.Credentials{AccessToken: "a1", RefreshToken: "r1"},
			}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/auth/2fa/verify",
		`{"challenge_token":"ch1","code":"123456"}`)
	if err := h.Verify2FA(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthHandler_Refresh_Success(t *testing.T) {
	stub := &stubAuthService{
		refreshFn: func(ctx context.Context, refreshToken string) (*domain.Credentials, error) {
			if refreshToken != "r1" {
				t.Fatalf("unexpected token: %s", refreshToken)
			}
			return &domain.Credentials{AccessToken: "a2", RefreshToken: "r2"}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/auth/refresh", `{"refresh_token":"r1"}`)
	if err := h.Refresh(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["access_token"] != "a2" || resp["refresh_token"] != "r2" {
		t.Fatalf("rotated pair missing: %+v", resp)
	}
}

func TestAuthHandler_Logout_UsesContextToken(t *testing.T) {
	var revoked string
	stub := &stubAuthService{
		logoutFn: func(ctx context.Context, accessToken string) error {
			revoked = accessToken
			return nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/auth/logout", "")
	c.Set(middleware.AccessTokenKey, "tok-1")

	if err := h.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if revoked != "tok-1" {
		t.Fatalf("token not forwarded: %q", revoked)
	}
}

func TestAuthHandler_Me_ReturnsIdentity(t *testing.T) {
	stub := &stubAuthService{
		fetchFn: func(ctx context.Context, accessToken string) (*domain.Identity, error) {
			if accessToken != "tok-1" {
				t.Fatalf("unexpected token: %s", accessToken)
			}
			return &domain.Identity{ID: "u1", Roles: []string{domain.RoleAgent}}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodGet, "/auth/me", "")
	c.Set(middleware.AccessTokenKey, "tok-1")

	if err := h.Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var identity domain.Identity
	_ = json.Unmarshal(rec.Body.Bytes(), &identity)
	if identity.ID != "u1" {
		t.Fatalf("identity mismatch: %+v", identity)
	}
}

func TestAuthHandler_Me_MissingMiddleware(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{})

	c, _ := newTestContext(t, http.MethodGet, "/auth/me", "")
	err := h.Me(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestAuthHandler_CreateUser_Success(t *testing.T) {
	stub := &stubAuthService{
		createUserFn: func(ctx context.Context, in service.CreateUserInput) (*domain.User, error) {
			if in.Email != "new@example.com" || in.Password != "longenough" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &domain.User{ID: "u9", Email: in.Email, Roles: in.Roles}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/auth/users",
		`{"name":"New Agent","email":"new@example.com","password":"longenough","roles":["agent"]}`)
	if err := h.CreateUser(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp map[string]domain.Identity
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["user"].ID != "u9" {
		t.Fatalf("created user missing: %+v", resp)
	}
}

func TestAuthHandler_CreateUser_ShortPasswordRejected(t *testing.T) {
	stub := &stubAuthService{
		createUserFn: func(ctx context.Context, in service.CreateUserInput) (*domain.User, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	h := NewAuthHandler(stub)

	c, _ := newTestContext(t, http.MethodPost, "/auth/users",
		`{"name":"X","email":"x@example.com","password":"short","roles":["agent"]}`)
	err := h.CreateUser(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
