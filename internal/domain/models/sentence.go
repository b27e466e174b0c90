// internal/domain/models/sentence.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultSentenceCategory is used when a sentence carries no #hashtag.
const DefaultSentenceCategory = "general"

// Sentence is one entry in the group's sentence ledger. Likes holds the
// member IDs that have liked the entry; toggling a like adds or removes the
// caller's ID, so a member counts at most once.
type Sentence struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GroupID  int64              `bson:"group_id" json:"group_id"`
	MemberID int64              `bson:"member_id" json:"member_id"`
	Username string             `bson:"username,omitempty" json:"username,omitempty"`
	Text     string             `bson:"text" json:"text"`
	Category string             `bson:"category" json:"category"`

	Likes     []int64   `bson:"likes,omitempty" json:"likes,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// LikeCount returns the number of distinct members that liked the sentence.
func (s Sentence) LikeCount() int { return len(s.Likes) }
