package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Capture job repository sentinels.
	ErrCaptureJobNotFound = errors.New("capture job not found")
	ErrClaimContention    = errors.New("claim lost to concurrent worker after retries")

	// Archive repository sentinels.
	ErrArchiveNotFound = errors.New("archive not found")

	// Webhook subscription repository sentinels.
	ErrWebhookSubscriptionNotFound = errors.New("webhook subscription not found")
)
