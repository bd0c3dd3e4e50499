package model

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// EventType identifies the webhook event a subscription listens for.
type EventType string

// EventArchiveCreated fires once per Archive creation, never on later
// updates to the same Archive.
const EventArchiveCreated EventType = "ARCHIVE_CREATED"

// Valid returns true if the EventType is recognised.
func (e EventType) Valid() bool {
	return e == EventArchiveCreated
}

// SigningAlgorithm names an HMAC hash function used to sign webhook payloads.
type SigningAlgorithm string

const (
	// SigningSHA256 is the default signing algorithm for new subscriptions.
	SigningSHA256 SigningAlgorithm = "sha256"
	// SigningSHA512 is accepted for subscribers that request it.
	SigningSHA512 SigningAlgorithm = "sha512"
)

// Valid returns true if the SigningAlgorithm is supported.
func (a SigningAlgorithm) Valid() bool {
	return a == SigningSHA256 || a == SigningSHA512
}

// WebhookSubscription registers a callback URL for event notifications.
// The signing key and algorithm are generated once at creation and are
// immutable afterward; the capture core treats the row as read-only.
type WebhookSubscription struct {
	ID     string `json:"id"      db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	// OwnerEmail is where permanent delivery failures are reported.
	// Populated by the account-management collaborator at creation.
	OwnerEmail  string    `json:"owner_email"  db:"owner_email"`
	CallbackURL string    `json:"callback_url" db:"callback_url"`
	EventType   EventType `json:"event_type"   db:"event_type"`

	SigningKey          string           `json:"-" db:"signing_key"`
	SigningKeyAlgorithm SigningAlgorithm `json:"signing_key_algorithm" db:"signing_key_algorithm"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateWebhookSubscriptionRequest registers a new callback.
type CreateWebhookSubscriptionRequest struct {
	UserID      string    `json:"user_id"`
	OwnerEmail  string    `json:"owner_email"`
	CallbackURL string    `json:"callback_url"`
	EventType   EventType `json:"event_type"`
	// Algorithm is optional; sha256 when unset.
	Algorithm SigningAlgorithm `json:"signing_key_algorithm,omitempty"`
}

// Validate validates the CreateWebhookSubscriptionRequest fields.
func (r *CreateWebhookSubscriptionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	u, err := url.Parse(r.CallbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("callback_url must be a valid http(s) URL")
	}
	if !r.EventType.Valid() {
		return errors.New("invalid event type")
	}
	if r.Algorithm != "" && !r.Algorithm.Valid() {
		return errors.New("unsupported signing algorithm")
	}
	return nil
}
