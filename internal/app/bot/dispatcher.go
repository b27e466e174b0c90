// internal/app/bot/dispatcher.go

// Package bot routes inbound transport events to the admission machine and
// the command handlers. One dispatcher goroutine consumes the gateway's event
// stream; each event is handled with a bounded context and a correlation ID
// so concurrent store activity can be traced per event.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trackbot/internal/app/admission"
	groupauthstore "trackbot/internal/app/store/groupauth"
	mutestore "trackbot/internal/app/store/mutestates"
	registrationstore "trackbot/internal/app/store/registrations"
	sentencestore "trackbot/internal/app/store/sentences"
	targetstore "trackbot/internal/app/store/targets"
	"trackbot/internal/app/system/timeouts"
	"trackbot/internal/app/system/transport"
)

// Dispatcher consumes gateway events and routes them.
type Dispatcher struct {
	machine   *admission.Machine
	regs      *registrationstore.Store
	mutes     *mutestore.Store
	auth      *groupauthstore.Store
	targets   *targetstore.Store
	sentences *sentencestore.Store
	gw        transport.Gateway
	log       *zap.Logger
}

// New creates a dispatcher over the gateway and stores.
func New(
	machine *admission.Machine,
	regs *registrationstore.Store,
	mutes *mutestore.Store,
	auth *groupauthstore.Store,
	targets *targetstore.Store,
	sentences *sentencestore.Store,
	gw transport.Gateway,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		machine:   machine,
		regs:      regs,
		mutes:     mutes,
		auth:      auth,
		targets:   targets,
		sentences: sentences,
		gw:        gw,
		log:       logger,
	}
}

// Run consumes events until the gateway's stream closes or ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.gw.Events():
			if !ok {
				return
			}
			d.handle(ev)
		}
	}
}

func (d *Dispatcher) handle(ev transport.Event) {
	corrID := uuid.NewString()
	log := d.log.With(
		zap.String("event_id", corrID),
		zap.String("kind", string(ev.Kind)),
		zap.Int64("group_id", ev.GroupID),
		zap.Int64("member_id", ev.MemberID),
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Long())
	defer cancel()

	// Group events from an unauthorized group are dropped before any handler
	// runs. Joins are exempt: the gate binds on first join.
	if !ev.Private && ev.Kind != transport.EventMemberJoined {
		ok, err := d.machine.Gate().IsAuthorized(ctx, ev.GroupID)
		if err != nil {
			log.Error("authorization check failed", zap.Error(err))
			return
		}
		if !ok {
			log.Debug("event from unauthorized group ignored")
			return
		}
	}

	var err error
	switch ev.Kind {
	case transport.EventMemberJoined:
		err = d.machine.OnMemberJoined(ctx, ev.GroupID, ev.GroupTitle, ev.MemberID, ev.Username)
	case transport.EventMemberLeft:
		err = d.machine.OnMemberLeft(ctx, ev.MemberID, ev.GroupID)
	case transport.EventButtonPressed:
		err = d.handleCallback(ctx, ev)
	case transport.EventCommandInvoked:
		err = d.handleCommand(ctx, ev)
	case transport.EventMessage:
		err = d.handleMessage(ctx, ev)
	default:
		return
	}

	var gerr *admission.GuardError
	switch {
	case err == nil:
	case errors.As(err, &gerr):
		log.Info("operation blocked by state guard", zap.String("reason", string(gerr.Reason)))
	default:
		log.Error("event handling failed", zap.Error(err))
	}
}

// handleMessage backstops the transport mute: a message from a member who is
// recorded muted but still managed to post is removed and the member is
// pointed back at the declaration.
func (d *Dispatcher) handleMessage(ctx context.Context, ev transport.Event) error {
	if ev.Private {
		return nil
	}
	muted, err := d.mutes.Exists(ctx, ev.MemberID, ev.GroupID)
	if err != nil {
		return err
	}
	if !muted {
		return nil
	}
	verified, err := d.regs.IsVerified(ctx, ev.MemberID, ev.GroupID)
	if err != nil {
		return err
	}
	if verified {
		// Stale mute row; the accept path removes it, but clean up anyway.
		return d.mutes.Delete(ctx, ev.MemberID, ev.GroupID)
	}

	if err := d.gw.DeleteMessage(ctx, ev.GroupID, ev.MessageID); err != nil {
		d.log.Warn("could not remove message from muted member",
			zap.Int64("member_id", ev.MemberID), zap.Error(err))
	}
	return d.machine.SendDeclaration(ctx, ev.MemberID, ev.GroupID)
}

// isAdmin reports whether the member holds admin rights in the group,
// according to the platform.
func (d *Dispatcher) isAdmin(ctx context.Context, groupID, memberID int64) (bool, error) {
	status, err := d.gw.MemberStatus(ctx, groupID, memberID)
	if err != nil {
		return false, err
	}
	return status == "creator" || status == "administrator", nil
}

// boundGroupID resolves the group a private-chat command applies to.
func (d *Dispatcher) boundGroupID(ctx context.Context) (int64, error) {
	auth, err := d.auth.Get(ctx)
	if err != nil {
		return 0, err
	}
	return auth.GroupID, nil
}

// parseGroupSuffix extracts the trailing group ID from callback data such as
// "decl_accept_-1001234".
func parseGroupSuffix(data, prefix string) (int64, bool) {
	raw := strings.TrimPrefix(data, prefix)
	if raw == data {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
