package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatcenter/authkit/internal/core/domain"
)

const auditCollection = "auth_audit"

// MongoAuditRepository appends authentication audit events. Events are
// write-only from authd's perspective; reporting reads them elsewhere.
type MongoAuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *MongoAuditRepository {
	return &MongoAuditRepository{coll: db.Collection(auditCollection)}
}

type mongoAuditEvent struct {
	UserID    string `bson:"user_id"`
	Email     string `bson:"email,omitempty"`
	Action    string `bson:"action"`
	Success   bool   `bson:"success"`
	Reason    string `bson:"reason,omitempty"`
	Timestamp int64  `bson:"timestamp"`
}

func (r *MongoAuditRepository) Insert(ctx context.Context, ev domain.AuditEvent) error {
	doc := mongoAuditEvent{
		UserID:    ev.UserID,
		Email:     ev.Email,
		Action:    ev.Action,
		Success:   ev.Success,
		Reason:    ev.Reason,
		Timestamp: ev.Timestamp.Unix(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
