package mutestore_test

import (
	"errors"
	"testing"
	"time"

	mutestore "trackbot/internal/app/store/mutestates"
	"trackbot/internal/testutil"
)

const (
	groupID  = int64(-1001234)
	memberID = int64(42)
)

func TestUpsertAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := mutestore.New(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	until := time.Now().UTC().Add(24 * time.Hour)
	if err := store.Upsert(ctx, memberID, groupID, "awaiting declaration", &until); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	m, err := store.Get(ctx, memberID, groupID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if m.Reason != "awaiting declaration" {
		t.Errorf("unexpected reason %q", m.Reason)
	}
	if m.MutedUntil == nil {
		t.Fatal("expected muted_until to be set")
	}

	// Re-upsert without a deadline clears the window.
	if err := store.Upsert(ctx, memberID, groupID, "manual", nil); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	m, _ = store.Get(ctx, memberID, groupID)
	if m.MutedUntil != nil {
		t.Error("expected muted_until to be cleared for an indefinite mute")
	}
	if m.Reason != "manual" {
		t.Errorf("expected refreshed reason, got %q", m.Reason)
	}
}

func TestExistsAndDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := mutestore.New(db)

	ok, err := store.Exists(ctx, memberID, groupID)
	if err != nil || ok {
		t.Fatalf("expected no mute state (ok=%v err=%v)", ok, err)
	}

	// Deleting an absent row is fine.
	if err := store.Delete(ctx, memberID, groupID); err != nil {
		t.Fatalf("Delete of absent row failed: %v", err)
	}

	until := time.Now().UTC().Add(time.Hour)
	store.Upsert(ctx, memberID, groupID, "awaiting declaration", &until)

	ok, _ = store.Exists(ctx, memberID, groupID)
	if !ok {
		t.Error("expected mute state to exist")
	}

	if err := store.Delete(ctx, memberID, groupID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, memberID, groupID); !errors.Is(err, mutestore.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCountAndDeleteByGroup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := mutestore.New(db)
	until := time.Now().UTC().Add(time.Hour)
	store.Upsert(ctx, 1, groupID, "awaiting declaration", &until)
	store.Upsert(ctx, 2, groupID, "awaiting declaration", &until)
	store.Upsert(ctx, 3, int64(-2000), "awaiting declaration", &until)

	n, err := store.CountByGroup(ctx, groupID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 muted in group (n=%d err=%v)", n, err)
	}

	deleted, err := store.DeleteByGroup(ctx, groupID)
	if err != nil || deleted != 2 {
		t.Fatalf("expected 2 deleted (deleted=%d err=%v)", deleted, err)
	}
	n, _ = store.CountByGroup(ctx, int64(-2000))
	if n != 1 {
		t.Errorf("other group's rows must survive, got %d", n)
	}
}
