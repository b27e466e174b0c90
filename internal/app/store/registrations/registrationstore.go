// internal/app/store/registrations/registrationstore.go
package registrationstore

// Terminology: Member Identifiers
//   - MemberID / memberID / member_id: The transport-level numeric ID of a member
//   - GroupID / groupID / group_id: The transport-level numeric ID of a group
//
// Every write here is a single conditional update keyed on the current status,
// so concurrent callers race safely without in-process locks: exactly one
// wins a transition and the losers see ErrNotPending or ErrConflict.

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trackbot/internal/domain/models"
)

var (
	// ErrNotFound is returned when no registration exists for the key.
	ErrNotFound = errors.New("registration not found")
	// ErrNotPending is returned when a transition requires status "pending"
	// and the registration is in some other state (or absent).
	ErrNotPending = errors.New("registration is not pending")
	// ErrConflict is returned when a concurrent conditional update won the
	// race; the caller should re-read and report the terminal state.
	ErrConflict = errors.New("registration write conflict")
)

// Store provides access to the registrations collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new registration store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("registrations")}
}

// EnsureIndexes creates the unique (member_id, group_id) index and the
// status index used by the reminder sweep.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "member_id", Value: 1}, {Key: "group_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_registrations_member_group"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_registrations_group_status"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Get returns the registration for (memberID, groupID).
func (s *Store) Get(ctx context.Context, memberID, groupID int64) (models.Registration, error) {
	var reg models.Registration
	err := s.c.FindOne(ctx, bson.M{"member_id": memberID, "group_id": groupID}).Decode(&reg)
	if err == mongo.ErrNoDocuments {
		return models.Registration{}, ErrNotFound
	}
	if err != nil {
		return models.Registration{}, err
	}
	return reg, nil
}

// IsVerified reports whether the member holds a verified registration in the group.
func (s *Store) IsVerified(ctx context.Context, memberID, groupID int64) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"member_id": memberID,
		"group_id":  groupID,
		"status":    models.StatusVerified,
	}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsurePending establishes a pending registration for (memberID, groupID).
//
// Three conditional writes, each atomic on its own:
//  1. touch an existing pending row (duplicate join; created_at untouched)
//  2. revive a declined/left_group row into a fresh cycle (new created_at)
//  3. insert a fresh row
//
// A verified row is never modified; if one exists (or lands concurrently)
// the insert hits the unique index and ErrConflict is returned.
func (s *Store) EnsurePending(ctx context.Context, memberID, groupID int64, username string) error {
	now := time.Now().UTC()

	// Duplicate join: keep the cycle, refresh the display name only.
	touch := bson.M{"$set": bson.M{"username": username, "updated_at": now}}
	res, err := s.c.UpdateOne(ctx, bson.M{
		"member_id": memberID, "group_id": groupID, "status": models.StatusPending,
	}, touch)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Rejoin after decline/leave: new cycle, fresh timestamps.
	revive := bson.M{
		"$set": bson.M{
			"username":       username,
			"status":         models.StatusPending,
			"reminder_level": 0,
			"created_at":     now,
			"updated_at":     now,
		},
		"$unset": bson.M{"verified_at": "", "left_at": ""},
	}
	res, err = s.c.UpdateOne(ctx, bson.M{
		"member_id": memberID, "group_id": groupID,
		"status": bson.M{"$in": bson.A{models.StatusDeclined, models.StatusLeftGroup}},
	}, revive)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// First join for this key.
	_, err = s.c.InsertOne(ctx, models.Registration{
		ID:        primitive.NewObjectID(),
		MemberID:  memberID,
		GroupID:   groupID,
		Username:  username,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if wafflemongo.IsDup(err) {
		// Lost a race. A concurrent duplicate join already inserted the
		// pending row (fine), or a decision landed; tell the caller apart.
		if reg, gerr := s.Get(ctx, memberID, groupID); gerr == nil && reg.Status == models.StatusPending {
			return nil
		}
		return ErrConflict
	}
	return err
}

// MarkVerified transitions pending -> verified. Exactly one of any number of
// concurrent callers succeeds; the rest get ErrNotPending.
func (s *Store) MarkVerified(ctx context.Context, memberID, groupID int64) error {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx, bson.M{
		"member_id": memberID, "group_id": groupID, "status": models.StatusPending,
	}, bson.M{
		"$set": bson.M{"status": models.StatusVerified, "verified_at": now, "updated_at": now},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotPending
	}
	return nil
}

// DeletePending removes a pending registration (the decline path purges
// rather than archives, so a later rejoin starts clean).
func (s *Store) DeletePending(ctx context.Context, memberID, groupID int64) error {
	res, err := s.c.DeleteOne(ctx, bson.M{
		"member_id": memberID, "group_id": groupID, "status": models.StatusPending,
	})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkLeft archives the registration as left_group, whatever its current
// status. Returns false when no registration exists; that is not an error.
func (s *Store) MarkLeft(ctx context.Context, memberID, groupID int64) (bool, error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx, bson.M{
		"member_id": memberID, "group_id": groupID,
	}, bson.M{
		"$set": bson.M{"status": models.StatusLeftGroup, "left_at": now, "updated_at": now},
	})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// ListPending returns all pending registrations in the group, oldest first.
func (s *Store) ListPending(ctx context.Context, groupID int64) ([]models.Registration, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"group_id": groupID, "status": models.StatusPending}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var regs []models.Registration
	if err := cur.All(ctx, &regs); err != nil {
		return nil, err
	}
	return regs, nil
}

// SetReminderLevel records that the reminder at the given level fired.
// The $lt guard keeps the level monotone even with overlapping sweeps, and
// the pending guard keeps the sweep from touching decided registrations.
func (s *Store) SetReminderLevel(ctx context.Context, memberID, groupID int64, level int) error {
	_, err := s.c.UpdateOne(ctx, bson.M{
		"member_id": memberID, "group_id": groupID,
		"status":         models.StatusPending,
		"reminder_level": bson.M{"$lt": level},
	}, bson.M{
		"$set": bson.M{"reminder_level": level, "updated_at": time.Now().UTC()},
	})
	return err
}

// CountByStatus returns the number of registrations in the group with the
// given status. Used by the status command.
func (s *Store) CountByStatus(ctx context.Context, groupID int64, status string) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID, "status": status})
}

// DeleteByGroup removes all registrations for a group. Used by full reset.
func (s *Store) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
