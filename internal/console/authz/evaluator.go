// Package authz is the pure authorization decision core. The same evaluation
// runs at the network boundary (permission middleware) and at the UI routing
// boundary (route guard), so the two can never disagree.
package authz

import "github.com/chatcenter/authkit/internal/core/domain"

// Mode selects how a requirement's role and permission sets are combined.
type Mode int

const (
	// AnyOf grants access when the identity holds at least one required role
	// or at least one required permission. Default.
	AnyOf Mode = iota
	// AllOf grants access only when the identity holds every required role
	// and every required permission.
	AllOf
)

// Requirement is the role/permission demand attached to a protected
// resource. An empty requirement admits any authenticated identity.
type Requirement struct {
	Roles       []string
	Permissions []string
	Mode        Mode
}

// IsEmpty reports whether the requirement demands nothing.
func (r Requirement) IsEmpty() bool {
	return len(r.Roles) == 0 && len(r.Permissions) == 0
}

// CanAccess decides whether the identity satisfies the requirement. It is
// deterministic and side-effect free. Matching is case-sensitive exact
// membership; there is no hierarchy or wildcarding.
func CanAccess(identity *domain.Identity, req Requirement) bool {
	if identity == nil {
		return false
	}

	// Superuser escape hatch: the administrator role bypasses every check.
	// Deliberately an explicit branch so the bypass is auditable, not an
	// emergent property of set membership.
	if identity.HasRole(domain.RoleAdmin) {
		return true
	}

	if req.IsEmpty() {
		return true
	}

	switch req.Mode {
	case AllOf:
		for _, role := range req.Roles {
			if !identity.HasRole(role) {
				return false
			}
		}
		for _, perm := range req.Permissions {
			if !identity.HasPermission(perm) {
				return false
			}
		}
		return true
	default: // AnyOf
		for _, role := range req.Roles {
			if identity.HasRole(role) {
				return true
			}
		}
		for _, perm := range req.Permissions {
			if identity.HasPermission(perm) {
				return true
			}
		}
		return false
	}
}
