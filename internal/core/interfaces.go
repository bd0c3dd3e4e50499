package core

import (
	"context"
	"time"

	"github.com/capturelab/scoopd/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// CaptureJobRepository defines the interface for capture job data operations.
type CaptureJobRepository interface {
	// Create inserts a new pending job with a fair queue position.
	Create(ctx context.Context, req *model.CreateCaptureJobRequest) (*model.CaptureJob, error)
	GetByID(ctx context.Context, id string) (*model.CaptureJob, error)

	// GetNextJob atomically claims the highest-priority pending job and
	// returns it with status in_progress and a capture start time set.
	// Returns model.ErrNoJobsPending when the queue is empty.
	GetNextJob(ctx context.Context) (*model.CaptureJob, error)

	// Save persists fields changed since the job's last loaded state.
	Save(ctx context.Context, job *model.CaptureJob) error

	// MarkCompleted, MarkFailed, and MarkInvalid write terminal statuses.
	// They are forward-only: a job already terminal is left untouched.
	MarkCompleted(ctx context.Context, job *model.CaptureJob) error
	MarkFailed(ctx context.Context, job *model.CaptureJob, message string) error
	MarkInvalid(ctx context.Context, job *model.CaptureJob, messages []string) error

	// FailStaleJobs fails in_progress jobs whose capture started more than
	// hardTimeout ago on the database clock. Returns the failed job IDs.
	FailStaleJobs(ctx context.Context, hardTimeout time.Duration, limit int) ([]string, error)

	// PendingCountForUser returns the user's pending job count, used for queue stats.
	PendingCountForUser(ctx context.Context, userID string) (int, error)
}

// ArchiveRepository defines the interface for archive data operations.
type ArchiveRepository interface {
	Create(ctx context.Context, req *model.CreateArchiveRequest) (*model.Archive, error)
	GetByJobID(ctx context.Context, jobID string) (*model.Archive, error)

	// ListExpired returns archives whose download URL is set and expired.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.Archive, error)

	// ClearDownloadURL nulls the download URL and expiry. Returns false when
	// the URL was already cleared, so callers can skip redundant deletes.
	ClearDownloadURL(ctx context.Context, archiveID string) (bool, error)
}

// WebhookSubscriptionRepository defines the interface for webhook subscription data operations.
type WebhookSubscriptionRepository interface {
	Create(ctx context.Context, req *model.CreateWebhookSubscriptionRequest) (*model.WebhookSubscription, error)
	GetByID(ctx context.Context, id string) (*model.WebhookSubscription, error)

	// ListForUserEvent returns the user's subscriptions matching an event type.
	ListForUserEvent(ctx context.Context, userID string, event model.EventType) ([]*model.WebhookSubscription, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ObjectStore defines the interface for archive artifact storage.
type ObjectStore interface {
	// Put uploads the file at srcPath to the named object. The returned
	// flag reports whether an existing object was overwritten, so callers
	// can log the collision.
	Put(ctx context.Context, name, srcPath string) (overwrote bool, err error)
	// SignedURL returns a time-limited download URL for the named object.
	SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error)
	// Delete removes the named object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
}

// TaskQueue defines the interface for background task dispatch.
type TaskQueue interface {
	// Enqueue makes the task available immediately.
	Enqueue(ctx context.Context, queue string, payload []byte) error
	// EnqueueDelayed makes the task available after the delay elapses.
	EnqueueDelayed(ctx context.Context, queue string, payload []byte, delay time.Duration) error
	// Dequeue pops the next available task, promoting due delayed tasks
	// first. Returns nil with no error when the queue is empty.
	Dequeue(ctx context.Context, queue string) ([]byte, error)
}
