package admission

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestGate_UnboundAllowsAndFirstAdmitBinds(t *testing.T) {
	auth := &fakeAuth{}
	gate := NewGate(auth, zap.NewNop())
	ctx := context.Background()

	ok, err := gate.IsAuthorized(ctx, testGroup)
	if err != nil || !ok {
		t.Fatalf("unbound gate must authorize any group (ok=%v err=%v)", ok, err)
	}

	authorized, bound, err := gate.Admit(ctx, testGroup, "Test Group")
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !authorized || !bound {
		t.Fatalf("first Admit must authorize and bind (authorized=%v bound=%v)", authorized, bound)
	}
}

func TestGate_BoundRejectsOtherGroups(t *testing.T) {
	auth := &fakeAuth{}
	gate := NewGate(auth, zap.NewNop())
	ctx := context.Background()

	if _, _, err := gate.Admit(ctx, testGroup, "Test Group"); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	other := int64(-2009999)
	ok, err := gate.IsAuthorized(ctx, other)
	if err != nil {
		t.Fatalf("IsAuthorized failed: %v", err)
	}
	if ok {
		t.Error("bound gate must reject other groups")
	}

	authorized, bound, err := gate.Admit(ctx, other, "Other Group")
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if authorized || bound {
		t.Errorf("Admit for another group must neither authorize nor re-bind (authorized=%v bound=%v)", authorized, bound)
	}

	// The bound group stays authorized.
	ok, _ = gate.IsAuthorized(ctx, testGroup)
	if !ok {
		t.Error("bound group must stay authorized")
	}
}
