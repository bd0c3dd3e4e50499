package webhook

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/core"
	"github.com/capturelab/scoopd/internal/domain/model"
)

// QueueDeliveries is the task queue name for webhook delivery attempts.
const QueueDeliveries = "webhook-deliveries"

// Dispatcher fans an archive-created event out to one queued delivery per
// matching subscription. It satisfies the engine's archive observer hook, so
// it fires exactly once per Archive creation and never on later updates.
type Dispatcher struct {
	subs   core.WebhookSubscriptionRepository
	queue  core.TaskQueue
	cfg    *config.WebhookConfig
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(subs core.WebhookSubscriptionRepository, queue core.TaskQueue, cfg *config.WebhookConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{subs: subs, queue: queue, cfg: cfg, logger: logger}
}

// OnArchiveCreated enqueues one independent delivery task per subscription
// the job owner holds for the archive-created event. Enqueue failures are
// logged per subscription; one broken delivery never blocks the rest.
func (d *Dispatcher) OnArchiveCreated(ctx context.Context, job *model.CaptureJob, archive *model.Archive) {
	if !d.cfg.Enabled {
		d.logger.Info("webhook dispatch disabled, skipping notifications",
			"job_id", job.ID, "archive_id", archive.ID)
		return
	}

	subs, err := d.subs.ListForUserEvent(ctx, job.UserID, model.EventArchiveCreated)
	if err != nil {
		d.logger.Error("failed to list webhook subscriptions", "job_id", job.ID, "err", err)
		return
	}

	for _, sub := range subs {
		payload, err := json.Marshal(deliveryTask{
			SubscriptionID: sub.ID,
			CaptureJobID:   job.ID,
		})
		if err != nil {
			d.logger.Error("failed to encode delivery task", "subscription_id", sub.ID, "err", err)
			continue
		}
		if err := d.queue.Enqueue(ctx, QueueDeliveries, payload); err != nil {
			d.logger.Error("failed to enqueue webhook delivery",
				"subscription_id", sub.ID, "job_id", job.ID, "err", err)
			continue
		}
		d.logger.Info("webhook delivery enqueued", "subscription_id", sub.ID, "job_id", job.ID)
	}
}
