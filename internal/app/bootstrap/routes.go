// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	healthfeature "trackbot/internal/app/features/health"
)

// BuildHandler constructs the root HTTP handler for this WAFFLE app.
//
// The bot's work happens on the Telegram long-poll loop, not over HTTP; the
// handler exists for orchestration: a health endpoint for load balancers and
// liveness probes.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	return r, nil
}
