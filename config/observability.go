package config

import "strings"

const defaultObservabilityName = "scoopd"

// ObservabilityConfig groups configuration that controls metrics and alert email fan-out.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
	Alerts  AlertEmailConfig `envPrefix:"ALERT_EMAIL_"`
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Alerts.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	StatsdPrefix  string `env:"OBSERVABILITY_METRICS_STATSD_PREFIX"  envDefault:"scoopd"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if c.StatsdPrefix == "" {
		c.StatsdPrefix = defaultObservabilityName
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// AlertEmailConfig controls outbound alert emails for webhook and engine failures.
type AlertEmailConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"25"`
	Username string `env:"USERNAME" envDefault:""`
	Password string `env:"PASSWORD" envDefault:""`
	From     string `env:"FROM"     envDefault:"alerts@scoopd.local"`
	AppName  string `env:"APP_NAME" envDefault:"scoopd"`
	// AdminEmails receive engine failure alerts (comma-delimited).
	AdminEmails []string `env:"ADMINS" envDefault:""`
}

// Sanitize normalises alert email configuration values.
func (c *AlertEmailConfig) Sanitize() {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" || c.From == "" {
		c.Enabled = false
	}
	if c.Port <= 0 {
		c.Port = 25
	}
	if c.AppName == "" {
		c.AppName = defaultObservabilityName
	}
	admins := c.AdminEmails[:0]
	for _, a := range c.AdminEmails {
		a = strings.TrimSpace(a)
		if a != "" {
			admins = append(admins, a)
		}
	}
	c.AdminEmails = admins
}
