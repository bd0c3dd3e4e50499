// Package config holds the scoopd application configuration, loaded from
// environment variables via github.com/caarlos0/env.
package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files:
//   - database.go: Postgres and Redis configuration
//   - services.go: service mode and worker configuration
//   - capture.go: capture tool (Scoop) configuration
//   - webhook.go: webhook dispatch configuration
//   - maintenance.go: reaper and janitor configuration
//   - storage.go: artifact storage configuration
//   - observability.go: metrics and alert email configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	IsDev bool `env:"DEV" envDefault:"false"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Services selects which services this process runs (comma-delimited).
	Services string `env:"SERVICES" envDefault:"capture-runner"`

	Capture       CaptureConfig
	Webhook       WebhookConfig
	Reaper        ReaperConfig
	Janitor       JanitorConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// It should be called once, after env parsing.
func (c *AppConfig) Sanitize() {
	c.Capture.Sanitize()
	c.Webhook.Sanitize()
	c.Reaper.Sanitize()
	c.Janitor.Sanitize()
	c.Storage.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}
