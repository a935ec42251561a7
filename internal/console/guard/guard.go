// Package guard gates navigation to protected console views. Denial due to
// missing authentication redirects to login; denial due to missing
// permission redirects to the unauthorized view. The distinction matters:
// lack of permission is not lack of authentication.
package guard

import (
	"github.com/chatcenter/authkit/internal/console/authz"
	"github.com/chatcenter/authkit/internal/core/domain"
)

// Action is the guard's verdict on a navigation attempt.
type Action int

const (
	// ShowLoading renders a neutral indicator while the session is still
	// initializing; no redirect happens before initialization completes.
	ShowLoading Action = iota
	// Render allows the navigation.
	Render
	// RedirectLogin sends an unauthenticated user to the login entry point.
	RedirectLogin
	// RedirectHome sends an authenticated user away from entry points.
	RedirectHome
	// RedirectUnauthorized sends an authenticated but unprivileged user to
	// the unauthorized view.
	RedirectUnauthorized
)

// Route describes the navigation target.
type Route struct {
	Path        string
	RequireAuth bool
	Requirement authz.Requirement
}

// Decision is the guard's output. ReturnTo carries the originally requested
// path on login redirects so the console can navigate back after login.
type Decision struct {
	Action   Action
	Target   string
	ReturnTo string
}

// Guard holds the console's redirect targets.
type Guard struct {
	LoginPath        string
	HomePath         string
	UnauthorizedPath string
}

// New returns a Guard with the console's default paths.
func New() Guard {
	return Guard{
		LoginPath:        "/login",
		HomePath:         "/",
		UnauthorizedPath: "/unauthorized",
	}
}

// Decide evaluates a navigation against the current authentication state.
func (g Guard) Decide(route Route, status domain.AuthStatus, identity *domain.Identity) Decision {
	// Initialization and login submission are in flight: hold the page.
	if status == domain.StatusUninitialized || status == domain.StatusAuthenticating {
		return Decision{Action: ShowLoading}
	}

	if route.RequireAuth && status != domain.StatusAuthenticated {
		return Decision{Action: RedirectLogin, Target: g.LoginPath, ReturnTo: route.Path}
	}

	if !route.RequireAuth && status == domain.StatusAuthenticated {
		return Decision{Action: RedirectHome, Target: g.HomePath}
	}

	if route.RequireAuth && !route.Requirement.IsEmpty() && !authz.CanAccess(identity, route.Requirement) {
		return Decision{Action: RedirectUnauthorized, Target: g.UnauthorizedPath}
	}

	return Decision{Action: Render}
}
