// internal/domain/models/target.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Target is one member's daily target. Exactly one document per
// (member_id, date); setting a second target for the same day replaces the
// first. Date is truncated to midnight UTC.
type Target struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GroupID  int64              `bson:"group_id" json:"group_id"`
	MemberID int64              `bson:"member_id" json:"member_id"`
	Username string             `bson:"username,omitempty" json:"username,omitempty"`
	Text     string             `bson:"text" json:"text"`
	Date     time.Time          `bson:"date" json:"date"`

	Completed   bool       `bson:"completed" json:"completed"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
}
