package ports

import (
	"context"

	"github.com/chatcenter/authkit/internal/core/domain"
)

// AuditSink accepts auth events for asynchronous persistence. Implementations
// must not block the caller; recording is best-effort.
type AuditSink interface {
	Record(event domain.AuditEvent)
}

// AuditRepository persists audit events.
type AuditRepository interface {
	Insert(ctx context.Context, event domain.AuditEvent) error
}

// CodeSender delivers a second-factor code to the account owner. Delivery
// mechanics (mail, SMS) live outside this module.
type CodeSender interface {
	Send(ctx context.Context, email, code string) error
}
