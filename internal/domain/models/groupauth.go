// internal/domain/models/groupauth.go
package models

import "time"

// GroupAuthDocID is the fixed _id of the singleton binding document. Using a
// constant _id makes the set-if-absent write safe under horizontal scaling:
// two concurrent binds race on the same document and exactly one inserts.
const GroupAuthDocID = "authorized_group"

// GroupAuthorization binds the bot to exactly one group. At most one document
// exists; while none exists the gate is open and the first qualifying event
// creates the binding.
type GroupAuthorization struct {
	ID        string    `bson:"_id" json:"id"`
	GroupID   int64     `bson:"group_id" json:"group_id"`
	GroupName string    `bson:"group_name" json:"group_name"`
	BoundAt   time.Time `bson:"bound_at" json:"bound_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
