package webhook

import (
	"encoding/json"
	"time"

	"github.com/capturelab/scoopd/internal/domain/model"
)

// deliveryTask is the queued unit of work for one delivery attempt. It
// carries identifiers, not payload bytes: the worker rebuilds the payload
// from the store on every attempt so subscribers always see current state.
type deliveryTask struct {
	SubscriptionID string `json:"subscription_id"`
	CaptureJobID   string `json:"capture_job_id"`
	Attempt        int    `json:"attempt"`
}

// subscriptionView is the subscription summary included in the payload. The
// signing key never leaves the server.
type subscriptionView struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	CallbackURL string          `json:"callback_url"`
	EventType   model.EventType `json:"event_type"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// captureJobView is the read-only job projection with its archive nested.
type captureJobView struct {
	*model.CaptureJob
	Archive *model.Archive `json:"archive,omitempty"`
}

// buildPayload renders the delivery body for one subscription and job.
func buildPayload(sub *model.WebhookSubscription, job *model.CaptureJob, archive *model.Archive) ([]byte, error) {
	return json.Marshal(map[string]any{
		"webhook": subscriptionView{
			ID:          sub.ID,
			UserID:      sub.UserID,
			CallbackURL: sub.CallbackURL,
			EventType:   sub.EventType,
			CreatedAt:   sub.CreatedAt,
			UpdatedAt:   sub.UpdatedAt,
		},
		"capture_job": captureJobView{CaptureJob: job, Archive: archive},
	})
}
