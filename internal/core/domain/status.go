package domain

// AuthStatus is the console-side authentication state. Exactly one value
// holds at a time; transitions are driven by the state machine in
// internal/console/state.
type AuthStatus string

const (
	StatusUninitialized    AuthStatus = "uninitialized"
	StatusAnonymous        AuthStatus = "anonymous"
	StatusAuthenticating   AuthStatus = "authenticating"
	StatusTwoFactorPending AuthStatus = "two_factor_pending"
	StatusAuthenticated    AuthStatus = "authenticated"
	StatusError            AuthStatus = "error"
)

// validAuthTransitions defines the allowed state machine transitions.
// StatusError is reachable from anywhere and always resolves to Anonymous,
// so it is listed explicitly as both source and target.
var validAuthTransitions = map[AuthStatus][]AuthStatus{
	StatusUninitialized:    {StatusAnonymous, StatusAuthenticated, StatusError},
	StatusAnonymous:        {StatusAuthenticating, StatusError},
	StatusAuthenticating:   {StatusTwoFactorPending, StatusAuthenticated, StatusAnonymous, StatusError},
	StatusTwoFactorPending: {StatusAuthenticated, StatusAnonymous, StatusError},
	StatusAuthenticated:    {StatusAnonymous, StatusError},
	StatusError:            {StatusAnonymous},
}

// CanTransitionTo reports whether a transition from the current status to
// next is valid.
func (s AuthStatus) CanTransitionTo(next AuthStatus) bool {
	for _, allowed := range validAuthTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
