// internal/app/store/mutestates/mutestore.go
package mutestore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trackbot/internal/domain/models"
)

// ErrNotFound is returned when no mute state exists for the key.
var ErrNotFound = errors.New("mute state not found")

// Store provides access to the muted_members collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new mute state store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("muted_members")}
}

// EnsureIndexes creates the unique key index and the TTL index that expires
// rows past muted_until. The TTL is cleanup only; admission logic deletes
// rows explicitly and never waits for it.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "member_id", Value: 1}, {Key: "group_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_muted_member_group"),
		},
		{
			Keys:    bson.D{{Key: "muted_until", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_muted_until_ttl"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Upsert records a mute for (memberID, groupID). until may be nil for an
// indefinite mute. Re-muting an already muted member refreshes the window.
func (s *Store) Upsert(ctx context.Context, memberID, groupID int64, reason string, until *time.Time) error {
	now := time.Now().UTC()
	set := bson.M{
		"member_id": memberID,
		"group_id":  groupID,
		"reason":    reason,
		"muted_at":  now,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
	}
	if until != nil {
		set["muted_until"] = *until
	} else {
		update["$unset"] = bson.M{"muted_until": ""}
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.c.UpdateOne(ctx, bson.M{"member_id": memberID, "group_id": groupID}, update, opts)
	return err
}

// Get returns the mute state for (memberID, groupID).
func (s *Store) Get(ctx context.Context, memberID, groupID int64) (models.MuteState, error) {
	var m models.MuteState
	err := s.c.FindOne(ctx, bson.M{"member_id": memberID, "group_id": groupID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return models.MuteState{}, ErrNotFound
	}
	if err != nil {
		return models.MuteState{}, err
	}
	return m, nil
}

// Exists reports whether a mute state exists for (memberID, groupID).
func (s *Store) Exists(ctx context.Context, memberID, groupID int64) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{"member_id": memberID, "group_id": groupID}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the mute state. Deleting an absent row is not an error;
// every lift-restriction path calls this unconditionally.
func (s *Store) Delete(ctx context.Context, memberID, groupID int64) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"member_id": memberID, "group_id": groupID})
	return err
}

// CountByGroup returns the number of currently muted members in the group.
func (s *Store) CountByGroup(ctx context.Context, groupID int64) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID})
}

// DeleteByGroup removes all mute states for a group. Used by full reset.
func (s *Store) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
