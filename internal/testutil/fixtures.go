package testutil

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"trackbot/internal/domain/models"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateRegistration inserts a registration with the given status.
// CreatedAt is set to now; use CreateRegistrationAged for older cycles.
func (f *Fixtures) CreateRegistration(ctx context.Context, memberID, groupID int64, status string) models.Registration {
	return f.CreateRegistrationAged(ctx, memberID, groupID, status, 0)
}

// CreateRegistrationAged inserts a registration whose cycle started `age`
// ago. Used by reminder tests that need old pending registrations.
func (f *Fixtures) CreateRegistrationAged(ctx context.Context, memberID, groupID int64, status string, age time.Duration) models.Registration {
	f.t.Helper()

	now := time.Now().UTC()
	created := now.Add(-age)
	reg := models.Registration{
		ID:        primitive.NewObjectID(),
		MemberID:  memberID,
		GroupID:   groupID,
		Username:  "testmember",
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if status == models.StatusVerified {
		reg.VerifiedAt = &now
	}
	if status == models.StatusLeftGroup {
		reg.LeftAt = &now
	}

	if _, err := f.db.Collection("registrations").InsertOne(ctx, reg); err != nil {
		f.t.Fatalf("failed to create test registration: %v", err)
	}
	return reg
}

// CreateMuteState inserts a mute record for (memberID, groupID).
func (f *Fixtures) CreateMuteState(ctx context.Context, memberID, groupID int64) models.MuteState {
	f.t.Helper()

	now := time.Now().UTC()
	until := now.Add(24 * time.Hour)
	m := models.MuteState{
		ID:         primitive.NewObjectID(),
		MemberID:   memberID,
		GroupID:    groupID,
		Reason:     "awaiting declaration",
		MutedAt:    now,
		MutedUntil: &until,
	}

	if _, err := f.db.Collection("muted_members").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test mute state: %v", err)
	}
	return m
}

// BindGroup inserts the singleton group binding.
func (f *Fixtures) BindGroup(ctx context.Context, groupID int64, name string) models.GroupAuthorization {
	f.t.Helper()

	now := time.Now().UTC()
	auth := models.GroupAuthorization{
		ID:        models.GroupAuthDocID,
		GroupID:   groupID,
		GroupName: name,
		BoundAt:   now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("group_settings").InsertOne(ctx, auth); err != nil {
		f.t.Fatalf("failed to bind test group: %v", err)
	}
	return auth
}

// CreateTarget inserts a target for the member on the given date.
func (f *Fixtures) CreateTarget(ctx context.Context, groupID, memberID int64, text string, date time.Time) models.Target {
	f.t.Helper()

	y, m, d := date.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	target := models.Target{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		MemberID:  memberID,
		Username:  "testmember",
		Text:      text,
		Date:      day,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := f.db.Collection("targets").InsertOne(ctx, target); err != nil {
		f.t.Fatalf("failed to create test target: %v", err)
	}
	return target
}

// CreateSentence inserts a sentence into the group ledger.
func (f *Fixtures) CreateSentence(ctx context.Context, groupID, memberID int64, text string) models.Sentence {
	f.t.Helper()

	s := models.Sentence{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		MemberID:  memberID,
		Username:  "testmember",
		Text:      text,
		Category:  models.DefaultSentenceCategory,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := f.db.Collection("sentences").InsertOne(ctx, s); err != nil {
		f.t.Fatalf("failed to create test sentence: %v", err)
	}
	return s
}
