// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown cleanly tears down the background loops and DB connections.
// Order: stop producing work (worker, gateway), drain the dispatcher, then
// drop the database connection.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if reminderWorker != nil {
		reminderWorker.Stop()
	}

	if deps.Gateway != nil {
		deps.Gateway.Close()
	}

	if dispatcherCancel != nil {
		dispatcherCancel()
		select {
		case <-dispatcherDone:
		case <-ctx.Done():
			logger.Warn("dispatcher did not drain before shutdown deadline")
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
