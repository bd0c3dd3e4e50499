// Package notify defines the alert channel used for permanent webhook
// delivery failures and unexpected engine errors.
package notify

import (
	"context"
	"time"
)

// WebhookFailure is emitted after webhook delivery retries are exhausted.
// It identifies the capture job so the subscriber can recover its archive
// via the API.
type WebhookFailure struct {
	SubscriptionID string
	CaptureJobID   string
	CallbackURL    string
	OwnerEmail     string
	Attempts       int
	LastError      string
	OccurredAt     time.Time
}

// EngineFailure is emitted when the execution engine hits an unexpected
// error outside the normal failure paths.
type EngineFailure struct {
	CaptureJobID string
	Stage        string
	Error        string
	OccurredAt   time.Time
}

// Sink describes a destination capable of consuming alerts.
type Sink interface {
	SendWebhookFailure(ctx context.Context, payload WebhookFailure) error
	SendEngineFailure(ctx context.Context, payload EngineFailure) error
}

// NopSink discards all alerts. Used when no alert channel is configured.
type NopSink struct{}

// SendWebhookFailure implements Sink.
func (NopSink) SendWebhookFailure(context.Context, WebhookFailure) error { return nil }

// SendEngineFailure implements Sink.
func (NopSink) SendEngineFailure(context.Context, EngineFailure) error { return nil }
