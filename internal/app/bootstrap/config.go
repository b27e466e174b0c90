// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

const defaultDeclaration = "By joining this group you agree to treat other " +
	"members with respect, stay on topic, and keep shared content inside the group."

// appConfigKeys defines the configuration keys for TrackBot.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, bot_token, etc.
//   - Environment variables: TRACKBOT_MONGO_URI, TRACKBOT_BOT_TOKEN, etc.
//   - Command-line flags: --mongo_uri, --bot_token, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "trackbot", Desc: "MongoDB database name"},

	{Name: "bot_token", Default: "", Desc: "Telegram Bot API token (required)"},
	{Name: "declaration", Default: defaultDeclaration, Desc: "Declaration text new members must accept"},

	{Name: "mute_window", Default: "24h", Desc: "Transport mute applied to unverified members (e.g., 24h)"},
	{Name: "reminder_interval", Default: "30m", Desc: "How often pending members are swept for reminders (e.g., 30m)"},
	{Name: "transport_timeout", Default: "30s", Desc: "Per-request timeout for Bot API calls (e.g., 30s)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, TRACKBOT_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "TRACKBOT", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:      appValues.String("mongo_uri"),
		MongoDatabase: appValues.String("mongo_database"),

		BotToken:    appValues.String("bot_token"),
		Declaration: appValues.String("declaration"),

		MuteWindow:       appValues.Duration("mute_window", 24*time.Hour),
		ReminderInterval: appValues.Duration("reminder_interval", 30*time.Minute),
		TransportTimeout: appValues.Duration("transport_timeout", 30*time.Second),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// TrackBot validates the MongoDB URI format to catch configuration errors
// early, before attempting to connect, and requires a bot token since the
// service cannot run without one.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.BotToken == "" {
		return fmt.Errorf("bot_token is required (set TRACKBOT_BOT_TOKEN)")
	}

	if appCfg.MuteWindow <= 0 {
		return fmt.Errorf("mute_window must be positive, got %s", appCfg.MuteWindow)
	}
	if appCfg.ReminderInterval <= 0 {
		return fmt.Errorf("reminder_interval must be positive, got %s", appCfg.ReminderInterval)
	}

	return nil
}
