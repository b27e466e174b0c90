// internal/domain/models/mutestate.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MuteState records a transport-level restriction for one member in one group.
// Presence of a document is the sole source of truth for "currently muted";
// it is removed in the same logical operation that lifts the restriction.
//
// MutedUntil is optional; nil means indefinite. A TTL index on muted_until
// expires stale rows, but admission logic never depends on the TTL firing.
type MuteState struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MemberID   int64              `bson:"member_id" json:"member_id"`
	GroupID    int64              `bson:"group_id" json:"group_id"`
	Reason     string             `bson:"reason" json:"reason"`
	MutedAt    time.Time          `bson:"muted_at" json:"muted_at"`
	MutedUntil *time.Time         `bson:"muted_until,omitempty" json:"muted_until,omitempty"`
}
