package domain

import "github.com/golang-jwt/jwt/v5"

// Credentials is the access/refresh token pair issued on login, second-factor
// verification, or refresh. The access token is a short-lived JWT; the
// refresh token is an opaque single-use secret (the server keeps only its
// hash).
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsZero reports whether neither token is present.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// AccessClaims is the JWT claim set carried by access tokens. Subject holds
// the user id; SessionID ties the token to its outstanding refresh secret so
// logout can revoke it.
type AccessClaims struct {
	Name             string   `json:"name,omitempty"`
	Email            string   `json:"email,omitempty"`
	Roles            []string `json:"roles,omitempty"`
	Permissions      []string `json:"perms,omitempty"`
	TwoFactorEnabled bool     `json:"tfa,omitempty"`
	SessionID        string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Identity rebuilds the read-only identity view embedded in the claims.
func (c *AccessClaims) Identity() *Identity {
	return &Identity{
		ID:               c.Subject,
		Name:             c.Name,
		Email:            c.Email,
		Roles:            c.Roles,
		Permissions:      c.Permissions,
		TwoFactorEnabled: c.TwoFactorEnabled,
	}
}
