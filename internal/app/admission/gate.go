// internal/app/admission/gate.go
package admission

import (
	"context"
	"errors"

	"go.uber.org/zap"

	groupauthstore "trackbot/internal/app/store/groupauth"
	"trackbot/internal/domain/models"
)

// AuthStore is the slice of the group authorization store the gate consumes.
type AuthStore interface {
	Get(ctx context.Context) (models.GroupAuthorization, error)
	Bind(ctx context.Context, groupID int64, groupName string) (models.GroupAuthorization, bool, error)
}

// Gate is the single-group admission filter. Every inbound event passes
// through it before any admission or content handling runs; events from
// unauthorized groups are silently ignored so the bot's presence never leaks
// to unintended groups.
type Gate struct {
	auth AuthStore
	log  *zap.Logger
}

// NewGate creates a gate over the given authorization store.
func NewGate(auth AuthStore, logger *zap.Logger) *Gate {
	return &Gate{auth: auth, log: logger}
}

// IsAuthorized is the pure predicate: open while unbound, otherwise true only
// for the bound group.
func (g *Gate) IsAuthorized(ctx context.Context, groupID int64) (bool, error) {
	auth, err := g.auth.Get(ctx)
	if errors.Is(err, groupauthstore.ErrNotBound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return auth.GroupID == groupID, nil
}

// Admit checks authorization at an admission entry point and, while unbound,
// binds the calling group permanently. Returns whether the group is
// authorized and whether this call created the binding.
func (g *Gate) Admit(ctx context.Context, groupID int64, groupName string) (authorized, bound bool, err error) {
	auth, err := g.auth.Get(ctx)
	if err == nil {
		return auth.GroupID == groupID, false, nil
	}
	if !errors.Is(err, groupauthstore.ErrNotBound) {
		return false, false, err
	}

	auth, bound, err = g.auth.Bind(ctx, groupID, groupName)
	if err != nil {
		return false, false, err
	}
	if bound {
		g.log.Info("authorized group bound",
			zap.Int64("group_id", auth.GroupID),
			zap.String("group_name", auth.GroupName))
	}
	// A concurrent bind may have won with a different group.
	return auth.GroupID == groupID, bound, nil
}
