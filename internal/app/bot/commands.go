// internal/app/bot/commands.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	targetstore "trackbot/internal/app/store/targets"
	"trackbot/internal/app/system/transport"
	"trackbot/internal/domain/models"
)

const helpText = `Commands:
/addtarget <text> - set your target for today
/addtargetfor <YYYY-MM-DD> <text> - set a target for a specific day
/done - mark today's target completed
/mytarget - show your target for today
/mytargets - show your recent targets
/today - show everyone's targets for today
/addsentence <text> [#category] - add a sentence to the group ledger
/sentences [category] - list recent sentences
/mysentences - list your sentences
/status - admission summary (admins)
/reset - wipe all group data (admins)`

func (d *Dispatcher) handleCommand(ctx context.Context, ev transport.Event) error {
	switch ev.Command {
	case "start":
		return d.cmdStart(ctx, ev)
	case "help":
		return d.reply(ctx, ev, helpText)
	case "addtarget":
		return d.requireAdmitted(ctx, ev, d.cmdAddTarget)
	case "addtargetfor":
		return d.requireAdmitted(ctx, ev, d.cmdAddTargetFor)
	case "done":
		return d.requireAdmitted(ctx, ev, d.cmdDone)
	case "mytarget":
		return d.requireAdmitted(ctx, ev, d.cmdMyTarget)
	case "mytargets":
		return d.requireAdmitted(ctx, ev, d.cmdMyTargets)
	case "today":
		return d.requireAdmitted(ctx, ev, d.cmdToday)
	case "addsentence":
		return d.requireAdmitted(ctx, ev, d.cmdAddSentence)
	case "sentences":
		return d.requireAdmitted(ctx, ev, d.cmdSentences)
	case "mysentences":
		return d.requireAdmitted(ctx, ev, d.cmdMySentences)
	case "status":
		return d.requireAdmin(ctx, ev, d.cmdStatus)
	case "reset":
		return d.requireAdmin(ctx, ev, d.cmdReset)
	default:
		return nil
	}
}

// cmdStart handles /start in a private chat. With a register_<groupID> deep
// link payload it re-sends the declaration; otherwise it greets.
func (d *Dispatcher) cmdStart(ctx context.Context, ev transport.Event) error {
	if !ev.Private {
		return nil
	}
	if len(ev.Args) == 1 {
		if groupID, ok := parseGroupSuffix(ev.Args[0], "register_"); ok {
			return d.machine.SendDeclaration(ctx, ev.MemberID, groupID)
		}
	}
	return d.reply(ctx, ev, "Hello! Use /help to see what I can do.")
}

type commandHandler func(ctx context.Context, ev transport.Event, groupID int64) error

// requireAdmitted resolves the command's group and runs the handler only for
// verified members. Unverified members get a pointer to the declaration.
func (d *Dispatcher) requireAdmitted(ctx context.Context, ev transport.Event, h commandHandler) error {
	groupID, err := d.commandGroup(ctx, ev)
	if err != nil {
		return err
	}
	admitted, err := d.machine.IsAdmitted(ctx, ev.MemberID, groupID)
	if err != nil {
		return err
	}
	if !admitted {
		return d.reply(ctx, ev, "You need to complete verification first. "+
			"Please respond to the group declaration.")
	}
	return h(ctx, ev, groupID)
}

// requireAdmin runs the handler only for platform-level group admins.
func (d *Dispatcher) requireAdmin(ctx context.Context, ev transport.Event, h commandHandler) error {
	groupID, err := d.commandGroup(ctx, ev)
	if err != nil {
		return err
	}
	admin, err := d.isAdmin(ctx, groupID, ev.MemberID)
	if err != nil {
		return err
	}
	if !admin {
		return d.reply(ctx, ev, "This command is for group admins only.")
	}
	return h(ctx, ev, groupID)
}

// commandGroup maps a command onto its group: the chat itself for group
// chats, the bound group for DMs.
func (d *Dispatcher) commandGroup(ctx context.Context, ev transport.Event) (int64, error) {
	if !ev.Private {
		return ev.GroupID, nil
	}
	return d.boundGroupID(ctx)
}

// reply answers in the chat the command arrived in.
func (d *Dispatcher) reply(ctx context.Context, ev transport.Event, text string, buttons ...transport.Button) error {
	chatID := ev.GroupID
	if ev.Private {
		chatID = ev.MemberID
	}
	return d.gw.SendMessage(ctx, chatID, text, buttons...)
}

func (d *Dispatcher) cmdAddTarget(ctx context.Context, ev transport.Event, groupID int64) error {
	text := strings.TrimSpace(strings.Join(ev.Args, " "))
	if text == "" {
		return d.reply(ctx, ev, "Usage: /addtarget <text>")
	}
	if err := d.targets.Set(ctx, groupID, ev.MemberID, ev.Username, text, time.Now()); err != nil {
		return err
	}
	return d.reply(ctx, ev, "Target set for today: "+text)
}

func (d *Dispatcher) cmdAddTargetFor(ctx context.Context, ev transport.Event, groupID int64) error {
	if len(ev.Args) < 2 {
		return d.reply(ctx, ev, "Usage: /addtargetfor <YYYY-MM-DD> <text>")
	}
	date, err := time.Parse("2006-01-02", ev.Args[0])
	if err != nil {
		return d.reply(ctx, ev, "I could not read that date. Use YYYY-MM-DD, e.g. 2026-08-30.")
	}
	text := strings.TrimSpace(strings.Join(ev.Args[1:], " "))
	if text == "" {
		return d.reply(ctx, ev, "Usage: /addtargetfor <YYYY-MM-DD> <text>")
	}
	if err := d.targets.Set(ctx, groupID, ev.MemberID, ev.Username, text, date); err != nil {
		return err
	}
	return d.reply(ctx, ev, fmt.Sprintf("Target set for %s: %s", date.Format("2006-01-02"), text))
}

func (d *Dispatcher) cmdDone(ctx context.Context, ev transport.Event, groupID int64) error {
	err := d.targets.MarkCompleted(ctx, ev.MemberID, time.Now())
	if errors.Is(err, targetstore.ErrNotFound) {
		return d.reply(ctx, ev, "You have no target for today. Set one with /addtarget.")
	}
	if err != nil {
		return err
	}
	return d.reply(ctx, ev, "Well done! Today's target is marked completed.")
}

func (d *Dispatcher) cmdMyTarget(ctx context.Context, ev transport.Event, groupID int64) error {
	t, err := d.targets.GetForDate(ctx, ev.MemberID, time.Now())
	if errors.Is(err, targetstore.ErrNotFound) {
		return d.reply(ctx, ev, "You have no target for today. Set one with /addtarget.")
	}
	if err != nil {
		return err
	}
	mark := " "
	if t.Completed {
		mark = "x"
	}
	return d.reply(ctx, ev, fmt.Sprintf("[%s] %s", mark, t.Text))
}

func (d *Dispatcher) cmdMyTargets(ctx context.Context, ev transport.Event, groupID int64) error {
	list, err := d.targets.ListRecent(ctx, ev.MemberID, 10)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return d.reply(ctx, ev, "You have no targets yet. Set one with /addtarget.")
	}
	var b strings.Builder
	b.WriteString("Your recent targets:\n")
	for _, t := range list {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "%s [%s] %s\n", t.Date.Format("2006-01-02"), mark, t.Text)
	}
	return d.reply(ctx, ev, b.String())
}

func (d *Dispatcher) cmdToday(ctx context.Context, ev transport.Event, groupID int64) error {
	list, err := d.targets.ListForDate(ctx, groupID, time.Now())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return d.reply(ctx, ev, "No targets set for today yet.")
	}
	var b strings.Builder
	b.WriteString("Today's targets:\n")
	for _, t := range list {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", mark, t.Username, t.Text)
	}
	return d.reply(ctx, ev, b.String())
}

func (d *Dispatcher) cmdAddSentence(ctx context.Context, ev transport.Event, groupID int64) error {
	text, category := splitCategory(strings.Join(ev.Args, " "))
	if text == "" {
		return d.reply(ctx, ev, "Usage: /addsentence <text> [#category]")
	}
	id, err := d.sentences.Append(ctx, groupID, ev.MemberID, ev.Username, text, category)
	if err != nil {
		return err
	}
	return d.reply(ctx, ev, "Sentence saved.", transport.Button{
		Label: "Like (0)",
		Data:  "like_" + id.Hex(),
	})
}

func (d *Dispatcher) cmdSentences(ctx context.Context, ev transport.Event, groupID int64) error {
	category := ""
	if len(ev.Args) > 0 {
		category = strings.TrimPrefix(ev.Args[0], "#")
	}
	list, err := d.sentences.List(ctx, groupID, category, 10)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return d.reply(ctx, ev, "No sentences yet. Add one with /addsentence.")
	}
	var b strings.Builder
	b.WriteString("Recent sentences:\n")
	for _, s := range list {
		fmt.Fprintf(&b, "%s (#%s, %d likes): %s\n", s.Username, s.Category, s.LikeCount(), s.Text)
	}
	return d.reply(ctx, ev, b.String())
}

func (d *Dispatcher) cmdMySentences(ctx context.Context, ev transport.Event, groupID int64) error {
	list, err := d.sentences.ListByMember(ctx, groupID, ev.MemberID, 10)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return d.reply(ctx, ev, "You have no sentences yet. Add one with /addsentence.")
	}
	var b strings.Builder
	b.WriteString("Your sentences:\n")
	for _, s := range list {
		fmt.Fprintf(&b, "%s (#%s, %d likes): %s\n",
			s.CreatedAt.Format("2006-01-02"), s.Category, s.LikeCount(), s.Text)
	}
	return d.reply(ctx, ev, b.String())
}

func (d *Dispatcher) cmdStatus(ctx context.Context, ev transport.Event, groupID int64) error {
	pending, err := d.regs.CountByStatus(ctx, groupID, models.StatusPending)
	if err != nil {
		return err
	}
	verified, err := d.regs.CountByStatus(ctx, groupID, models.StatusVerified)
	if err != nil {
		return err
	}
	muted, err := d.mutes.CountByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	return d.reply(ctx, ev, fmt.Sprintf(
		"Admission status:\nverified: %d\npending: %d\nmuted: %d", verified, pending, muted))
}

// cmdReset asks for confirmation; the destructive part runs from the
// reset_confirm callback.
func (d *Dispatcher) cmdReset(ctx context.Context, ev transport.Event, groupID int64) error {
	return d.reply(ctx, ev,
		"This removes ALL data for this group: registrations, mutes, targets, "+
			"sentences and the group binding. Are you sure?",
		transport.Button{Label: "Yes, wipe everything", Data: "reset_confirm"},
		transport.Button{Label: "Cancel", Data: "reset_cancel"},
	)
}

// resetGroup wipes every collection for the group and unbinds it.
func (d *Dispatcher) resetGroup(ctx context.Context, groupID int64) error {
	if _, err := d.regs.DeleteByGroup(ctx, groupID); err != nil {
		return fmt.Errorf("reset registrations: %w", err)
	}
	if _, err := d.mutes.DeleteByGroup(ctx, groupID); err != nil {
		return fmt.Errorf("reset mutes: %w", err)
	}
	if _, err := d.targets.DeleteByGroup(ctx, groupID); err != nil {
		return fmt.Errorf("reset targets: %w", err)
	}
	if _, err := d.sentences.DeleteByGroup(ctx, groupID); err != nil {
		return fmt.Errorf("reset sentences: %w", err)
	}
	if err := d.auth.Reset(ctx); err != nil {
		return fmt.Errorf("reset group binding: %w", err)
	}
	d.log.Info("group data reset", zap.Int64("group_id", groupID))
	return nil
}

// splitCategory pulls a single trailing #category tag out of the text.
func splitCategory(raw string) (text, category string) {
	raw = strings.TrimSpace(raw)
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", ""
	}
	last := fields[len(fields)-1]
	if strings.HasPrefix(last, "#") && len(last) > 1 {
		category = strings.ToLower(strings.TrimPrefix(last, "#"))
		text = strings.TrimSpace(strings.Join(fields[:len(fields)-1], " "))
		return text, category
	}
	return raw, ""
}
