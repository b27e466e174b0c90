// internal/app/bot/callbacks.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"trackbot/internal/app/admission"
	sentencestore "trackbot/internal/app/store/sentences"
	"trackbot/internal/app/system/transport"
)

func (d *Dispatcher) handleCallback(ctx context.Context, ev transport.Event) error {
	data := ev.CallbackData
	switch {
	case strings.HasPrefix(data, "decl_accept_"):
		return d.cbDeclaration(ctx, ev, "decl_accept_", d.machine.OnDeclarationAccepted)
	case strings.HasPrefix(data, "decl_decline_"):
		return d.cbDeclaration(ctx, ev, "decl_decline_", d.machine.OnDeclarationDeclined)
	case strings.HasPrefix(data, "like_"):
		return d.cbLike(ctx, ev)
	case data == "reset_confirm":
		return d.cbResetConfirm(ctx, ev)
	case data == "reset_cancel":
		return d.gw.AnswerCallback(ctx, ev.CallbackID, "Reset canceled.")
	default:
		return d.gw.AnswerCallback(ctx, ev.CallbackID, "")
	}
}

// cbDeclaration runs an accept/decline decision and translates the outcome
// into the toast the member sees. Guard violations are answered, not errored:
// the losing side of a race gets told what actually happened.
func (d *Dispatcher) cbDeclaration(ctx context.Context, ev transport.Event, prefix string,
	decide func(ctx context.Context, memberID, groupID int64) error) error {

	groupID, ok := parseGroupSuffix(ev.CallbackData, prefix)
	if !ok {
		return d.gw.AnswerCallback(ctx, ev.CallbackID, "")
	}

	err := decide(ctx, ev.MemberID, groupID)

	var gerr *admission.GuardError
	if errors.As(err, &gerr) {
		toast := ""
		switch gerr.Reason {
		case admission.ReasonAlreadyVerified:
			toast = "You are already verified."
		case admission.ReasonNotRegistered:
			toast = "You have no active registration. Rejoin the group to start over."
		case admission.ReasonLeftGroup:
			toast = "Your registration ended when you left the group."
		default:
			toast = "This request was already handled."
		}
		return d.gw.AnswerCallback(ctx, ev.CallbackID, toast)
	}
	if err != nil {
		// The decision did not commit; let the member retry the button.
		if ackErr := d.gw.AnswerCallback(ctx, ev.CallbackID, "Something went wrong, please try again."); ackErr != nil {
			d.log.Debug("callback ack failed", zap.Error(ackErr))
		}
		return err
	}
	return d.gw.AnswerCallback(ctx, ev.CallbackID, "")
}

func (d *Dispatcher) cbLike(ctx context.Context, ev transport.Event) error {
	raw := strings.TrimPrefix(ev.CallbackData, "like_")
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return d.gw.AnswerCallback(ctx, ev.CallbackID, "")
	}
	count, err := d.sentences.ToggleLike(ctx, id, ev.MemberID)
	if errors.Is(err, sentencestore.ErrNotFound) {
		return d.gw.AnswerCallback(ctx, ev.CallbackID, "That sentence no longer exists.")
	}
	if err != nil {
		return err
	}
	return d.gw.AnswerCallback(ctx, ev.CallbackID, fmt.Sprintf("%d likes", count))
}

// cbResetConfirm re-checks admin rights at confirmation time; the button
// could be tapped by anyone who sees it.
func (d *Dispatcher) cbResetConfirm(ctx context.Context, ev transport.Event) error {
	groupID, err := d.commandGroup(ctx, ev)
	if err != nil {
		return err
	}
	admin, err := d.isAdmin(ctx, groupID, ev.MemberID)
	if err != nil {
		return err
	}
	if !admin {
		return d.gw.AnswerCallback(ctx, ev.CallbackID, "Admins only.")
	}
	if err := d.resetGroup(ctx, groupID); err != nil {
		return err
	}
	return d.gw.AnswerCallback(ctx, ev.CallbackID, "All group data removed.")
}
