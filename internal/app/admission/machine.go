// internal/app/admission/machine.go

// Package admission implements the member admission state machine: new
// members are muted at the transport layer on join and stay muted until they
// accept the group declaration. All state transitions go through conditional
// store writes, so any number of concurrent instances converge on one winner
// per decision.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	registrationstore "trackbot/internal/app/store/registrations"
	"trackbot/internal/app/system/transport"
	"trackbot/internal/domain/models"
)

// RegistrationStore is the slice of the registration store the machine consumes.
type RegistrationStore interface {
	Get(ctx context.Context, memberID, groupID int64) (models.Registration, error)
	IsVerified(ctx context.Context, memberID, groupID int64) (bool, error)
	EnsurePending(ctx context.Context, memberID, groupID int64, username string) error
	MarkVerified(ctx context.Context, memberID, groupID int64) error
	DeletePending(ctx context.Context, memberID, groupID int64) error
	MarkLeft(ctx context.Context, memberID, groupID int64) (bool, error)
}

// MuteStore is the slice of the mute state store the machine consumes.
type MuteStore interface {
	Upsert(ctx context.Context, memberID, groupID int64, reason string, until *time.Time) error
	Delete(ctx context.Context, memberID, groupID int64) error
}

// Transport is the outbound transport surface the machine consumes.
type Transport interface {
	transport.Sender
	transport.Restrictor
}

// Config carries the machine's tunables.
type Config struct {
	// MuteWindow bounds the transport-level restriction applied on join.
	// The declaration stays answerable after it elapses; only the platform
	// mute falls away.
	MuteWindow time.Duration
	// BotUsername is the bot's public @username, used to build the deep link
	// on the group welcome button.
	BotUsername string
	// Declaration is the text the member must accept.
	Declaration string
}

// Machine is the admission state machine.
type Machine struct {
	regs  RegistrationStore
	mutes MuteStore
	gate  *Gate
	tg    Transport
	log   *zap.Logger
	cfg   Config
}

// NewMachine wires the state machine over its stores and transport.
func NewMachine(regs RegistrationStore, mutes MuteStore, gate *Gate, tg Transport, cfg Config, logger *zap.Logger) *Machine {
	return &Machine{regs: regs, mutes: mutes, gate: gate, tg: tg, log: logger, cfg: cfg}
}

// Gate exposes the authorization gate for the dispatcher's pre-filtering.
func (m *Machine) Gate() *Gate { return m.gate }

// OnMemberJoined handles a member entering the group.
//
// Order matters: the mute record and the registration are durable before any
// transport call, so a crash mid-handler leaves a restricted-but-reminded
// member, never an unrestricted unverified one. Transport failures after the
// writes are logged and, for permission denials, surfaced to the group.
func (m *Machine) OnMemberJoined(ctx context.Context, groupID int64, groupTitle string, memberID int64, username string) error {
	authorized, bound, err := m.gate.Admit(ctx, groupID, groupTitle)
	if err != nil {
		return fmt.Errorf("admission gate: %w", err)
	}
	if !authorized {
		m.log.Debug("join in unauthorized group ignored",
			zap.Int64("group_id", groupID), zap.Int64("member_id", memberID))
		return nil
	}

	// A verified member rejoining is welcomed back without a new cycle.
	verified, err := m.regs.IsVerified(ctx, memberID, groupID)
	if err != nil {
		return fmt.Errorf("check verified: %w", err)
	}
	if verified {
		m.notifyGroup(ctx, groupID, msgWelcomeBack(username))
		return nil
	}

	if err := m.regs.EnsurePending(ctx, memberID, groupID, username); err != nil {
		if errors.Is(err, registrationstore.ErrConflict) {
			// Verified concurrently; nothing left to do.
			return nil
		}
		return fmt.Errorf("ensure pending: %w", err)
	}

	until := time.Now().UTC().Add(m.cfg.MuteWindow)
	if err := m.mutes.Upsert(ctx, memberID, groupID, "awaiting declaration", &until); err != nil {
		return fmt.Errorf("record mute: %w", err)
	}

	// Transport restriction is best effort: the mute record already marks the
	// member unverified, and the message filter backstops a failed restrict.
	if err := m.tg.RestrictMember(ctx, groupID, memberID, &until); err != nil {
		if errors.Is(err, transport.ErrDenied) {
			m.log.Warn("cannot restrict member, bot lacks admin rights",
				zap.Int64("group_id", groupID), zap.Int64("member_id", memberID))
			m.notifyGroup(ctx, groupID, msgNeedAdminRights)
		} else {
			m.log.Error("restrict member failed",
				zap.Int64("group_id", groupID), zap.Int64("member_id", memberID), zap.Error(err))
		}
	}

	if bound {
		m.notifyGroup(ctx, groupID, msgGroupBound(groupTitle))
	}

	m.notifyGroup(ctx, groupID, msgJoinAnnouncement(username), transport.Button{
		Label: "Start verification",
		URL:   fmt.Sprintf("https://t.me/%s?start=register_%d", m.cfg.BotUsername, groupID),
	})

	// The DM fails until the member has opened a chat with the bot; the deep
	// link button above is the recovery path, so a refusal here is routine.
	if err := m.SendDeclaration(ctx, memberID, groupID); err != nil {
		m.log.Debug("declaration DM not delivered",
			zap.Int64("member_id", memberID), zap.Error(err))
	}

	m.log.Info("member joined, admission pending",
		zap.Int64("group_id", groupID),
		zap.Int64("member_id", memberID),
		zap.String("username", username))
	return nil
}

// SendDeclaration DMs the declaration text with accept/decline buttons. Also
// used by the /start deep link and the reminder escalation path.
func (m *Machine) SendDeclaration(ctx context.Context, memberID, groupID int64) error {
	return m.tg.SendMessage(ctx, memberID, msgDeclaration(m.cfg.Declaration),
		transport.Button{Label: "I accept", Data: fmt.Sprintf("decl_accept_%d", groupID)},
		transport.Button{Label: "I decline", Data: fmt.Sprintf("decl_decline_%d", groupID)},
	)
}

// OnDeclarationAccepted handles the accept decision. The pending -> verified
// transition is the commit point; everything after it is notification.
func (m *Machine) OnDeclarationAccepted(ctx context.Context, memberID, groupID int64) error {
	err := m.regs.MarkVerified(ctx, memberID, groupID)
	if errors.Is(err, registrationstore.ErrNotPending) {
		return m.guardFor(ctx, memberID, groupID)
	}
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	if err := m.mutes.Delete(ctx, memberID, groupID); err != nil {
		return fmt.Errorf("clear mute: %w", err)
	}
	m.unrestrict(ctx, groupID, memberID)

	reg, err := m.regs.Get(ctx, memberID, groupID)
	name := ""
	if err == nil {
		name = reg.Username
	}

	if err := m.tg.SendMessage(ctx, memberID, msgAccepted); err != nil {
		m.log.Debug("accept confirmation DM failed", zap.Int64("member_id", memberID), zap.Error(err))
	}
	m.notifyGroup(ctx, groupID, msgVerifiedAnnouncement(name))

	m.log.Info("member verified",
		zap.Int64("group_id", groupID), zap.Int64("member_id", memberID))
	return nil
}

// OnDeclarationDeclined handles the decline decision: the pending
// registration is purged so a later rejoin starts a clean cycle, and the
// transport restriction is lifted along with the mute record.
func (m *Machine) OnDeclarationDeclined(ctx context.Context, memberID, groupID int64) error {
	err := m.regs.DeletePending(ctx, memberID, groupID)
	if errors.Is(err, registrationstore.ErrNotPending) {
		return m.guardFor(ctx, memberID, groupID)
	}
	if err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}

	if err := m.mutes.Delete(ctx, memberID, groupID); err != nil {
		return fmt.Errorf("clear mute: %w", err)
	}
	m.unrestrict(ctx, groupID, memberID)

	if err := m.tg.SendMessage(ctx, memberID, msgDeclined); err != nil {
		m.log.Debug("decline confirmation DM failed", zap.Int64("member_id", memberID), zap.Error(err))
	}

	m.log.Info("member declined declaration",
		zap.Int64("group_id", groupID), zap.Int64("member_id", memberID))
	return nil
}

// OnMemberLeft archives the member's registration and clears any mute record.
// Idempotent: a leave with no registration is a no-op.
func (m *Machine) OnMemberLeft(ctx context.Context, memberID, groupID int64) error {
	existed, err := m.regs.MarkLeft(ctx, memberID, groupID)
	if err != nil {
		return fmt.Errorf("mark left: %w", err)
	}
	if err := m.mutes.Delete(ctx, memberID, groupID); err != nil {
		return fmt.Errorf("clear mute: %w", err)
	}
	if existed {
		m.log.Info("member left, registration archived",
			zap.Int64("group_id", groupID), zap.Int64("member_id", memberID))
	}
	return nil
}

// IsAdmitted reports whether the member may exercise member-level operations
// in the group: a verified registration and nothing else.
func (m *Machine) IsAdmitted(ctx context.Context, memberID, groupID int64) (bool, error) {
	return m.regs.IsVerified(ctx, memberID, groupID)
}

// guardFor re-reads the registration after a lost conditional write and maps
// the observed state onto the guard reason the actor should see.
func (m *Machine) guardFor(ctx context.Context, memberID, groupID int64) error {
	reg, err := m.regs.Get(ctx, memberID, groupID)
	if errors.Is(err, registrationstore.ErrNotFound) {
		return guard(ReasonNotRegistered)
	}
	if err != nil {
		return fmt.Errorf("re-read registration: %w", err)
	}
	switch reg.Status {
	case models.StatusVerified:
		return guard(ReasonAlreadyVerified)
	case models.StatusLeftGroup:
		return guard(ReasonLeftGroup)
	default:
		return guard(ReasonNotPending)
	}
}

// unrestrict lifts the transport restriction, best effort. The mute record is
// already gone, so a denial here only leaves the platform-side timer to expire.
func (m *Machine) unrestrict(ctx context.Context, groupID, memberID int64) {
	if err := m.tg.UnrestrictMember(ctx, groupID, memberID); err != nil {
		if errors.Is(err, transport.ErrDenied) {
			m.log.Warn("cannot unrestrict member, bot lacks admin rights",
				zap.Int64("group_id", groupID), zap.Int64("member_id", memberID))
		} else {
			m.log.Error("unrestrict member failed",
				zap.Int64("group_id", groupID), zap.Int64("member_id", memberID), zap.Error(err))
		}
	}
}

// notifyGroup sends a group message, best effort.
func (m *Machine) notifyGroup(ctx context.Context, groupID int64, text string, buttons ...transport.Button) {
	if err := m.tg.SendMessage(ctx, groupID, text, buttons...); err != nil {
		m.log.Error("group notification failed", zap.Int64("group_id", groupID), zap.Error(err))
	}
}
