package domain

import "time"

const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleAgent      = "agent"
)

// Console permissions. Matching is case-sensitive exact membership; there is
// no hierarchy or wildcarding.
const (
	PermChatsView   = "chats.view"
	PermChatsAssign = "chats.assign"
	PermUsersManage = "users.manage"
	PermReportsView = "reports.view"
)

// Identity models the authenticated console user. It is owned by the
// authentication state machine; every other component treats it as read-only.
type Identity struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	Roles            []string `json:"roles"`
	Permissions      []string `json:"permissions"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
}

// HasRole reports whether the identity holds the exact role.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the identity holds the exact permission.
func (i *Identity) HasPermission(perm string) bool {
	if i == nil {
		return false
	}
	for _, p := range i.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// User is the stored account record backing an Identity.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Roles            []string  `json:"roles"`
	Permissions      []string  `json:"permissions"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Identity projects the account into its read-only console view.
func (u *User) Identity() *Identity {
	return &Identity{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Roles:            u.Roles,
		Permissions:      u.Permissions,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}
