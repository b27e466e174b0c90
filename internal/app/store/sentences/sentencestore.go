// internal/app/store/sentences/sentencestore.go
package sentencestore

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

// ErrNotFound is returned when no sentence exists with the given ID.
var ErrNotFound = errors.New("sentence not found")

// Store provides access to the sentences collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new sentence store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sentences")}
}

// EnsureIndexes creates the listing indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_sentences_group_created"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "category", Value: 1}},
			Options: options.Index().SetName("idx_sentences_group_category"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Append adds a sentence to the group's ledger and returns its ID.
func (s *Store) Append(ctx context.Context, groupID, memberID int64, username, text, category string) (primitive.ObjectID, error) {
	if category == "" {
		category = models.DefaultSentenceCategory
	}
	doc := models.Sentence{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		MemberID:  memberID,
		Username:  username,
		Text:      text,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		return primitive.NilObjectID, err
	}
	return doc.ID, nil
}

// List returns the group's sentences, newest first, optionally filtered by
// category. If category is empty, all categories are returned.
func (s *Store) List(ctx context.Context, groupID int64, category string, limit int64) ([]models.Sentence, error) {
	filter := bson.M{"group_id": groupID}
	if category != "" {
		filter["category"] = category
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var sentences []models.Sentence
	if err := cur.All(ctx, &sentences); err != nil {
		return nil, err
	}
	return sentences, nil
}

// ListByMember returns the member's sentences in the group, newest first.
func (s *Store) ListByMember(ctx context.Context, groupID, memberID int64, limit int64) ([]models.Sentence, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := s.c.Find(ctx, bson.M{"group_id": groupID, "member_id": memberID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var sentences []models.Sentence
	if err := cur.All(ctx, &sentences); err != nil {
		return nil, err
	}
	return sentences, nil
}

// ToggleLike flips the member's like on the sentence and returns the new
// count. The $addToSet/$pull pair keeps each member counted at most once
// under concurrent taps.
func (s *Store) ToggleLike(ctx context.Context, id primitive.ObjectID, memberID int64) (int, error) {
	// Try to add first; matches only when the member has not liked yet.
	res, err := s.c.UpdateOne(ctx, bson.M{
		"_id":   id,
		"likes": bson.M{"$ne": memberID},
	}, bson.M{"$addToSet": bson.M{"likes": memberID}})
	if err != nil {
		return 0, err
	}
	if res.MatchedCount == 0 {
		// Already liked (or missing): remove the like.
		res, err = s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{"likes": memberID}})
		if err != nil {
			return 0, err
		}
		if res.MatchedCount == 0 {
			return 0, ErrNotFound
		}
	}

	var sent models.Sentence
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&sent); err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return sent.LikeCount(), nil
}

// DeleteByGroup removes all sentences for a group. Used by full reset.
func (s *Store) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
