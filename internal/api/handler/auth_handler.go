package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatcenter/authkit/internal/api/metrics"
	"github.com/chatcenter/authkit/internal/core/domain"
	"github.com/chatcenter/authkit/internal/core/ports"
	"github.com/chatcenter/authkit/internal/core/service"
)

// AuthService is the surface the handler needs: the authentication contract
// plus account provisioning.
type AuthService interface {
	ports.Authenticator
	CreateUser(ctx context.Context, in service.CreateUserInput) (*domain.User, error)
}

type AuthHandler struct {
	auth AuthService
}

func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,len=6,numeric"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type createUserRequest struct {
	Name             string   `json:"name" validate:"required"`
	Email            string   `json:"email" validate:"required,email"`
	Password         string   `json:"password" validate:"required,min=8"`
	Roles            []string `json:"roles" validate:"required,min=1"`
	Permissions      []string `json:"permissions"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
}

// sessionResponse is the wire shape for every credential-issuing endpoint.
// Either a token pair plus the identity, or a pending second-factor challenge.
type sessionResponse struct {
	AccessToken       string           `json:"access_token,omitempty"`
	RefreshToken      string           `json:"refresh_token,omitempty"`
	TwoFactorRequired bool             `json:"two_factor_required,omitempty"`
	ChallengeToken    string           `json:"challenge_token,omitempty"`
	User              *domain.Identity `json:"user,omitempty"`
}

func toSessionResponse(res *ports.LoginResult) sessionResponse {
	if res.TwoFactorRequired {
		return sessionResponse{TwoFactorRequired: true, ChallengeToken: res.ChallengeToken}
	}
	return sessionResponse{
		AccessToken:  res.Credentials.AccessToken,
		RefreshToken: res.Credentials.RefreshToken,
		User:         res.Identity,
	}
}

// Login authenticates email/password. Accounts with a second factor get a
// challenge token instead of credentials.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		if errors.Is(err, domain.ErrAccountLocked) {
			metrics.LockoutsTotal.Inc()
		}
		return err
	}

	if res.TwoFactorRequired {
		metrics.LoginsTotal.WithLabelValues(metrics.ResultChallenge).Inc()
	} else {
		metrics.LoginsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	}
	return c.JSON(http.StatusOK, toSessionResponse(res))
}

// Verify2FA completes a pending second-factor challenge.
func (h *AuthHandler) Verify2FA(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.auth.VerifyCode(c.Request().Context(), req.ChallengeToken, req.Code)
	if err != nil {
		metrics.TwoFactorTotal.WithLabelValues(loginResult(err)).Inc()
		if errors.Is(err, domain.ErrAccountLocked) {
			metrics.LockoutsTotal.Inc()
		}
		return err
	}

	metrics.TwoFactorTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return c.JSON(http.StatusOK, toSessionResponse(res))
}

// Refresh exchanges a refresh token for a rotated credential pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	creds, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues(loginResult(err)).Inc()
		return err
	}

	metrics.RefreshesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return c.JSON(http.StatusOK, sessionResponse{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	})
}

// Logout revokes the caller's refresh session.
func (h *AuthHandler) Logout(c echo.Context) error {
	token, err := ctxAccessToken(c)
	if err != nil {
		return err
	}

	if err := h.auth.Logout(c.Request().Context(), token); err != nil {
		return err
	}

	metrics.LogoutsTotal.Inc()
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's identity as stored, not as claimed: role and
// permission changes apply without waiting for token expiry.
func (h *AuthHandler) Me(c echo.Context) error {
	token, err := ctxAccessToken(c)
	if err != nil {
		return err
	}

	identity, err := h.auth.FetchIdentity(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, identity)
}

// CreateUser provisions a console account. Guarded by the users.manage
// permission at the route level.
func (h *AuthHandler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := h.auth.CreateUser(c.Request().Context(), service.CreateUserInput{
		Name:             req.Name,
		Email:            req.Email,
		Password:         req.Password,
		Roles:            req.Roles,
		Permissions:      req.Permissions,
		TwoFactorEnabled: req.TwoFactorEnabled,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]*domain.Identity{"user": user.Identity()})
}

// loginResult maps a domain error to its metric label.
func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountLocked):
		return metrics.ResultLocked
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrInvalidCode),
		errors.Is(err, domain.ErrInvalidRefreshToken):
		return metrics.ResultInvalid
	default:
		return metrics.ResultError
	}
}
