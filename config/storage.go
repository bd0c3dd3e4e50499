package config

import "time"

// StorageConfig contains artifact storage configuration.
type StorageConfig struct {
	// Backend selects the object store implementation ("gcs" or "memory").
	Backend string `env:"STORAGE_BACKEND" envDefault:"gcs"`

	// Bucket is the object store bucket holding archives.
	Bucket string `env:"STORAGE_BUCKET" envDefault:"scoopd-archives"`

	// CredentialsFile is an optional path to service account credentials.
	// When empty, application default credentials are used.
	CredentialsFile string `env:"STORAGE_CREDENTIALS_FILE" envDefault:""`

	// ArchiveExpiresAfter is how long archive download links remain valid.
	ArchiveExpiresAfter time.Duration `env:"ARCHIVE_EXPIRES_AFTER" envDefault:"4h"`

	// HashAlgorithm selects the artifact digest ("sha256" or "sha512").
	HashAlgorithm string `env:"ARCHIVE_HASH_ALGORITHM" envDefault:"sha256"`
}

// Sanitize applies guardrails to storage configuration values.
func (c *StorageConfig) Sanitize() {
	if c.Backend == "" {
		c.Backend = "gcs"
	}
	if c.ArchiveExpiresAfter <= 0 {
		c.ArchiveExpiresAfter = 4 * time.Hour
	}
	switch c.HashAlgorithm {
	case "sha256", "sha512":
	default:
		c.HashAlgorithm = "sha256"
	}
}
