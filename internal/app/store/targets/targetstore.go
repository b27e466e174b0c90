// internal/app/store/targets/targetstore.go
package targetstore

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

// ErrNotFound is returned when no target exists for the key.
var ErrNotFound = errors.New("target not found")

// Store provides access to the targets collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new target store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("targets")}
}

// EnsureIndexes creates the unique (member_id, date) index and the group
// listing index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "member_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_targets_member_date"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("idx_targets_group_date"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// DateOf truncates t to midnight UTC, the canonical target date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Set upserts the member's target for the given date, replacing any earlier
// target for that day.
func (s *Store) Set(ctx context.Context, groupID, memberID int64, username, text string, date time.Time) error {
	date = DateOf(date)
	update := bson.M{
		"$set": bson.M{
			"group_id":  groupID,
			"member_id": memberID,
			"username":  username,
			"text":      text,
			"date":      date,
			"completed": false,
		},
		"$unset":       bson.M{"completed_at": ""},
		"$setOnInsert": bson.M{"_id": primitive.NewObjectID(), "created_at": time.Now().UTC()},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.c.UpdateOne(ctx, bson.M{"member_id": memberID, "date": date}, update, opts)
	return err
}

// GetForDate returns the member's target for the given date.
func (s *Store) GetForDate(ctx context.Context, memberID int64, date time.Time) (models.Target, error) {
	var t models.Target
	err := s.c.FindOne(ctx, bson.M{"member_id": memberID, "date": DateOf(date)}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return models.Target{}, ErrNotFound
	}
	if err != nil {
		return models.Target{}, err
	}
	return t, nil
}

// ListForDate returns every member's target in the group for the given date.
func (s *Store) ListForDate(ctx context.Context, groupID int64, date time.Time) ([]models.Target, error) {
	cur, err := s.c.Find(ctx, bson.M{"group_id": groupID, "date": DateOf(date)})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var targets []models.Target
	if err := cur.All(ctx, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// ListRecent returns the member's most recent targets, newest first.
func (s *Store) ListRecent(ctx context.Context, memberID int64, limit int64) ([]models.Target, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}}).SetLimit(limit)
	cur, err := s.c.Find(ctx, bson.M{"member_id": memberID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var targets []models.Target
	if err := cur.All(ctx, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// MarkCompleted marks the member's target for the date as done. Returns
// ErrNotFound when the member has no target that day.
func (s *Store) MarkCompleted(ctx context.Context, memberID int64, date time.Time) error {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx, bson.M{"member_id": memberID, "date": DateOf(date)}, bson.M{
		"$set": bson.M{"completed": true, "completed_at": now},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByGroup removes all targets for a group. Used by full reset.
func (s *Store) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
