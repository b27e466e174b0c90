// internal/app/system/workers/reminder.go
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trackbot/internal/app/system/transport"
	"trackbot/internal/domain/models"
)

// reminderThresholds are the ages at which a pending registration earns a
// reminder, in ascending order. The level recorded on the registration is the
// 1-based index into this slice; level 0 means no reminder yet.
//
// A sweep fires at most one reminder per member per pass: the highest
// threshold the registration has crossed that is not recorded yet. A member
// whose registration is older than several thresholds (because the process
// was down) therefore gets one catch-up reminder, not a burst.
var reminderThresholds = []time.Duration{
	1 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
	23 * time.Hour,
}

// PendingLister is the slice of the registration store the sweep consumes.
type PendingLister interface {
	ListPending(ctx context.Context, groupID int64) ([]models.Registration, error)
	SetReminderLevel(ctx context.Context, memberID, groupID int64, level int) error
}

// BoundGroup resolves the currently bound group, if any.
type BoundGroup interface {
	Get(ctx context.Context) (models.GroupAuthorization, error)
}

// Reminder is a background worker that periodically nudges members who have
// not answered the declaration yet.
type Reminder struct {
	regs     PendingLister
	auth     BoundGroup
	sender   transport.Sender
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewReminder creates a new reminder worker.
//
// Parameters:
//   - regs: the registration store
//   - auth: the group authorization store
//   - sender: outbound message transport
//   - logger: zap logger for logging
//   - interval: how often to sweep pending registrations (e.g., 30 minutes)
func NewReminder(regs PendingLister, auth BoundGroup, sender transport.Sender, logger *zap.Logger, interval time.Duration) *Reminder {
	return &Reminder{
		regs:     regs,
		auth:     auth,
		sender:   sender,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *Reminder) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("reminder worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Reminder) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("reminder worker stopped")
}

func (w *Reminder) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Reminder) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	auth, err := w.auth.Get(ctx)
	if err != nil {
		// Includes the not-bound case: nothing to remind until a group binds.
		w.log.Debug("reminder sweep skipped", zap.Error(err))
		return
	}

	pending, err := w.regs.ListPending(ctx, auth.GroupID)
	if err != nil {
		w.log.Error("failed to list pending registrations", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	sent := 0
	for _, reg := range pending {
		level := dueLevel(reg, now)
		if level == 0 {
			continue
		}
		if err := w.remind(ctx, reg, level); err != nil {
			// One failed DM must not starve the rest of the sweep.
			w.log.Warn("reminder not delivered",
				zap.Int64("member_id", reg.MemberID),
				zap.Int("level", level),
				zap.Error(err))
			continue
		}
		sent++
	}

	if sent > 0 {
		w.log.Info("reminders sent", zap.Int("count", sent), zap.Int("pending", len(pending)))
	}
}

// dueLevel returns the reminder level to fire for the registration now, or 0
// when nothing is due. It is the highest crossed threshold not yet recorded.
func dueLevel(reg models.Registration, now time.Time) int {
	age := now.Sub(reg.CreatedAt)
	level := 0
	for i, threshold := range reminderThresholds {
		if age >= threshold {
			level = i + 1
		}
	}
	if level <= reg.ReminderLevel {
		return 0
	}
	return level
}

func (w *Reminder) remind(ctx context.Context, reg models.Registration, level int) error {
	text := reminderText(level, len(reminderThresholds))
	if err := w.sender.SendMessage(ctx, reg.MemberID, text,
		transport.Button{Label: "I accept", Data: fmt.Sprintf("decl_accept_%d", reg.GroupID)},
		transport.Button{Label: "I decline", Data: fmt.Sprintf("decl_decline_%d", reg.GroupID)},
	); err != nil {
		return err
	}
	// Recorded after delivery; a failed send retries on the next sweep. The
	// store's monotone guard absorbs duplicate records from parallel sweeps.
	return w.regs.SetReminderLevel(ctx, reg.MemberID, reg.GroupID, level)
}

func reminderText(level, max int) string {
	if level >= max {
		return "Final reminder: please respond to the group declaration. " +
			"You cannot post in the group until you do."
	}
	return "Reminder: please respond to the group declaration to unlock posting in the group."
}
