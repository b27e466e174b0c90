// internal/app/store/groupauth/groupauthstore.go
package groupauthstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trackbot/internal/domain/models"
)

// ErrNotBound is returned when no group has been authorized yet.
var ErrNotBound = errors.New("no authorized group bound")

// Store provides access to the group_settings collection, which holds at
// most one document: the singleton group binding.
type Store struct {
	c *mongo.Collection
}

// New creates a new group authorization store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_settings")}
}

// Get returns the current binding.
func (s *Store) Get(ctx context.Context) (models.GroupAuthorization, error) {
	var auth models.GroupAuthorization
	err := s.c.FindOne(ctx, bson.M{"_id": models.GroupAuthDocID}).Decode(&auth)
	if err == mongo.ErrNoDocuments {
		return models.GroupAuthorization{}, ErrNotBound
	}
	if err != nil {
		return models.GroupAuthorization{}, err
	}
	return auth, nil
}

// Bind authorizes the group via a set-if-absent write on the fixed singleton
// _id. Concurrent binds from different groups race on the same document and
// exactly one inserts; everyone gets back the winning binding. Returns true
// when this call created the binding.
func (s *Store) Bind(ctx context.Context, groupID int64, groupName string) (models.GroupAuthorization, bool, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"group_id":   groupID,
			"group_name": groupName,
			"bound_at":   now,
		},
		"$set": bson.M{"updated_at": now},
	}
	opts := options.Update().SetUpsert(true)
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": models.GroupAuthDocID}, update, opts)
	if err != nil {
		return models.GroupAuthorization{}, false, err
	}

	auth, err := s.Get(ctx)
	if err != nil {
		return models.GroupAuthorization{}, false, err
	}
	return auth, res.UpsertedCount > 0, nil
}

// IsAuthorized reports whether events from the group pass the gate:
// true while unbound (bootstrap mode) or when the group is the bound one.
func (s *Store) IsAuthorized(ctx context.Context, groupID int64) (bool, error) {
	auth, err := s.Get(ctx)
	if err == ErrNotBound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return auth.GroupID == groupID, nil
}

// Reset removes the binding. The next qualifying event re-binds.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": models.GroupAuthDocID})
	return err
}
