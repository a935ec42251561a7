package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatcenter/authkit/internal/api/middleware"
)

// ctxAccessToken extracts the raw bearer token injected by the Auth
// middleware. Its presence proves the middleware ran; a missing token on a
// guarded route is a wiring error surfaced as 401.
func ctxAccessToken(c echo.Context) (string, error) {
	token, _ := c.Get(middleware.AccessTokenKey).(string)
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return token, nil
}
