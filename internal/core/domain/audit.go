package domain

import "time"

// Audit actions recorded by the auth service.
const (
	AuditLogin          = "login"
	AuditLoginChallenge = "login.challenge"
	AuditVerifyCode     = "verify_code"
	AuditRefresh        = "refresh"
	AuditLogout         = "logout"
	AuditLockout        = "lockout"
)

// AuditEvent is a single authentication outcome. Events for the same user
// are persisted in emission order (the dispatcher shards by user id).
type AuditEvent struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
