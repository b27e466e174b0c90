// internal/domain/models/registration.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Registration status values. Transitions are monotone within one cycle:
// pending -> verified | declined | left_group. A fresh join after declined or
// left_group starts a new cycle with new timestamps.
const (
	StatusPending   = "pending"
	StatusVerified  = "verified"
	StatusDeclined  = "declined"
	StatusLeftGroup = "left_group"
)

// Registration tracks one member's admission cycle in one group.
// Exactly one document per (member_id, group_id).
//
// NOTE:
//   - Username is a display hint only, never an identity key.
//   - ReminderLevel is the highest reminder threshold already fired for this
//     cycle; it is the only field the reminder sweep writes.
type Registration struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MemberID int64              `bson:"member_id" json:"member_id"`
	GroupID  int64              `bson:"group_id" json:"group_id"`
	Username string             `bson:"username,omitempty" json:"username,omitempty"`
	Status   string             `bson:"status" json:"status"` // pending | verified | declined | left_group

	ReminderLevel int `bson:"reminder_level,omitempty" json:"reminder_level,omitempty"`

	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updated_at"`
	VerifiedAt *time.Time `bson:"verified_at,omitempty" json:"verified_at,omitempty"`
	LeftAt     *time.Time `bson:"left_at,omitempty" json:"left_at,omitempty"`
}
