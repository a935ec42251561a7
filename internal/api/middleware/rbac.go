package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatcenter/authkit/internal/console/authz"
	"github.com/chatcenter/authkit/internal/core/domain"
)

// Require enforces a role/permission requirement on a route. It relies on
// Auth having injected the identity; a missing identity is treated as an
// unauthenticated request, a failed check as a forbidden one.
func Require(req authz.Requirement) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, _ := c.Get(IdentityKey).(*domain.Identity)
			if identity == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
			}
			if !authz.CanAccess(identity, req) {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}
