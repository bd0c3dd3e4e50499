package config

import "time"

// WebhookConfig contains webhook delivery configuration.
type WebhookConfig struct {
	// Enabled controls whether webhook deliveries are dispatched at all.
	// When false, dispatch becomes a logged no-op.
	Enabled bool `env:"DISPATCH_WEBHOOKS" envDefault:"true"`

	// DeliveryTimeout bounds a single outbound POST.
	DeliveryTimeout time.Duration `env:"WEBHOOK_DELIVERY_TIMEOUT" envDefault:"20s"`

	// MaxRetries is the number of retries after the initial attempt.
	// Backoff doubles per attempt, so 11 retries spans roughly 34 minutes.
	MaxRetries int `env:"WEBHOOK_MAX_RETRIES" envDefault:"11"`

	// PollInterval is how long the delivery worker sleeps when the queue is empty.
	PollInterval time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"1s"`
}

// Sanitize applies guardrails to webhook configuration values.
func (c *WebhookConfig) Sanitize() {
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 20 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
}
