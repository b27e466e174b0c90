// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration: WAFFLE's CoreConfig handles
// framework-level settings like HTTP ports, TLS, and logging.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI      string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase string // Database name within MongoDB

	// Telegram configuration
	BotToken string // Bot API token from @BotFather (required)

	// Declaration is the text a new member must accept before posting.
	Declaration string

	// Admission tunables
	MuteWindow       time.Duration // transport-level restriction applied on join
	ReminderInterval time.Duration // how often the reminder sweep runs
	TransportTimeout time.Duration // per-request timeout for Bot API calls
}
