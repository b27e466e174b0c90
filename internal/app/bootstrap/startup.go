// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	"trackbot/internal/app/admission"
	"trackbot/internal/app/bot"
	groupauthstore "trackbot/internal/app/store/groupauth"
	mutestore "trackbot/internal/app/store/mutestates"
	registrationstore "trackbot/internal/app/store/registrations"
	sentencestore "trackbot/internal/app/store/sentences"
	targetstore "trackbot/internal/app/store/targets"
	"trackbot/internal/app/system/timeouts"
	"trackbot/internal/app/system/workers"
)

// Long-lived background pieces, kept for Shutdown.
var (
	reminderWorker   *workers.Reminder
	dispatcherCancel context.CancelFunc
	dispatcherDone   chan struct{}
)

// Startup wires the stores, the admission machine, the event dispatcher and
// the reminder worker, then starts the gateway's polling loop. It runs after
// DB connections and schema setup are complete, before the HTTP handler is
// built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.ConfigureFromEnv()

	db := deps.MongoDatabase
	regs := registrationstore.New(db)
	mutes := mutestore.New(db)
	auth := groupauthstore.New(db)
	targets := targetstore.New(db)
	sentences := sentencestore.New(db)

	gate := admission.NewGate(auth, logger)
	machine := admission.NewMachine(regs, mutes, gate, deps.Gateway, admission.Config{
		MuteWindow:  appCfg.MuteWindow,
		BotUsername: deps.Gateway.BotUsername(),
		Declaration: appCfg.Declaration,
	}, logger)

	dispatcher := bot.New(machine, regs, mutes, auth, targets, sentences, deps.Gateway, logger)

	reminderWorker = workers.NewReminder(regs, auth, deps.Gateway, logger, appCfg.ReminderInterval)

	deps.Gateway.Start()

	var runCtx context.Context
	runCtx, dispatcherCancel = context.WithCancel(context.Background())
	dispatcherDone = make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(runCtx)
	}()

	reminderWorker.Start()

	logger.Info("trackbot started",
		zap.String("bot_username", deps.Gateway.BotUsername()),
		zap.Duration("mute_window", appCfg.MuteWindow),
		zap.Duration("reminder_interval", appCfg.ReminderInterval))
	return nil
}
