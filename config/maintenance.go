package config

import "time"

// ReaperConfig contains stale job reaper configuration.
type ReaperConfig struct {
	// Interval is how often the reaper sweeps for stale jobs.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// HardTimeout is how long a job may stay in_progress, measured from its
	// capture start on the database clock, before it is failed.
	HardTimeout time.Duration `env:"REAPER_HARD_TIMEOUT" envDefault:"7m"`

	// BatchSize is the maximum number of jobs failed per sweep.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (c *ReaperConfig) Sanitize() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = 7 * time.Minute
	}
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
}

// JanitorConfig contains expired archive janitor configuration.
type JanitorConfig struct {
	// Interval is how often the janitor sweeps for expired archives.
	Interval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`

	// BatchSize is the maximum number of archives enqueued per sweep.
	BatchSize int `env:"JANITOR_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to janitor configuration values.
func (c *JanitorConfig) Sanitize() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
}
