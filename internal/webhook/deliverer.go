package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/core"
	"github.com/capturelab/scoopd/internal/domain/model"
	"github.com/capturelab/scoopd/internal/observability/metrics"
	"github.com/capturelab/scoopd/internal/observability/notify"
	"github.com/capturelab/scoopd/internal/observability/statsd"
)

// DelivererOptions bundles the dependencies for constructing a Deliverer.
type DelivererOptions struct {
	Subscriptions core.WebhookSubscriptionRepository
	Jobs          core.CaptureJobRepository
	Archives      core.ArchiveRepository
	Queue         core.TaskQueue
	Config        *config.WebhookConfig
	Logger        *slog.Logger
	Metrics       statsd.Sink
	Notifier      notify.Sink

	// Client overrides the HTTP client, for tests. When nil a client with
	// the configured timeout and no redirect following is built.
	Client *http.Client
}

// Deliverer is the worker side of webhook notification: it drains queued
// delivery tasks, POSTs signed payloads, and re-enqueues failures with
// exponential backoff until the retry budget runs out.
type Deliverer struct {
	subs     core.WebhookSubscriptionRepository
	jobs     core.CaptureJobRepository
	archives core.ArchiveRepository
	queue    core.TaskQueue
	client   *http.Client
	cfg      *config.WebhookConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	notifier notify.Sink
}

// NewDeliverer creates a Deliverer from the given options.
func NewDeliverer(opts DelivererOptions) *Deliverer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Config.DeliveryTimeout,
			// Redirects are not followed: a 3xx answer is a failed delivery.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Deliverer{
		subs:     opts.Subscriptions,
		jobs:     opts.Jobs,
		archives: opts.Archives,
		queue:    opts.Queue,
		client:   client,
		cfg:      opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
		notifier: notifier,
	}
}

// Run drains the delivery queue until the context is cancelled, sleeping
// the configured poll interval whenever the queue is empty.
func (d *Deliverer) Run(ctx context.Context) error {
	for {
		raw, err := d.queue.Dequeue(ctx, QueueDeliveries)
		if err != nil {
			d.logger.Error("failed to dequeue webhook delivery", "err", err)
		}
		if raw != nil {
			d.Handle(ctx, raw)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

// Handle processes one queued delivery attempt.
func (d *Deliverer) Handle(ctx context.Context, raw []byte) {
	var task deliveryTask
	if err := json.Unmarshal(raw, &task); err != nil {
		d.logger.Error("dropping malformed delivery task", "err", err)
		return
	}

	sub, attemptErr := d.attempt(ctx, task)
	if attemptErr == nil {
		metrics.EmitWebhookDelivery(d.metrics, metrics.WebhookMetric{
			Result:  metrics.ResultSuccess,
			Attempt: task.Attempt,
		})
		d.logger.Info("webhook delivered",
			"subscription_id", task.SubscriptionID, "job_id", task.CaptureJobID, "attempt", task.Attempt)
		return
	}

	metrics.EmitWebhookDelivery(d.metrics, metrics.WebhookMetric{
		Result:  metrics.ResultError,
		Attempt: task.Attempt,
	})

	if task.Attempt >= d.cfg.MaxRetries {
		d.exhausted(ctx, task, sub, attemptErr)
		return
	}

	delay := backoffDelay(task.Attempt)
	task.Attempt++
	next, err := json.Marshal(task)
	if err != nil {
		d.logger.Error("failed to encode retry task", "subscription_id", task.SubscriptionID, "err", err)
		return
	}
	if err := d.queue.EnqueueDelayed(ctx, QueueDeliveries, next, delay); err != nil {
		d.logger.Error("failed to re-enqueue webhook delivery",
			"subscription_id", task.SubscriptionID, "err", err)
		return
	}
	d.logger.Warn("webhook delivery failed, retrying",
		"subscription_id", task.SubscriptionID, "job_id", task.CaptureJobID,
		"attempt", task.Attempt-1, "retry_in", delay, "err", attemptErr)
}

// attempt performs one delivery: load current state, sign, POST. The
// subscription is returned even on failure so the exhaustion path can
// address its owner.
func (d *Deliverer) attempt(ctx context.Context, task deliveryTask) (*model.WebhookSubscription, error) {
	sub, err := d.subs.GetByID(ctx, task.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	job, err := d.jobs.GetByID(ctx, task.CaptureJobID)
	if err != nil {
		return sub, fmt.Errorf("load capture job: %w", err)
	}
	archive, err := d.archives.GetByJobID(ctx, task.CaptureJobID)
	if err != nil {
		return sub, fmt.Errorf("load archive: %w", err)
	}

	body, err := buildPayload(sub, job, archive)
	if err != nil {
		return sub, fmt.Errorf("build payload: %w", err)
	}
	signature, err := Sign(body, sub.SigningKeyAlgorithm, sub.SigningKey)
	if err != nil {
		return sub, fmt.Errorf("sign payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return sub, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return sub, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return sub, fmt.Errorf("webhook endpoint answered %d", resp.StatusCode)
	}
	return sub, nil
}

// exhausted reports a permanent delivery failure to the subscription owner
// and drops the task. The subscription itself is left untouched.
func (d *Deliverer) exhausted(ctx context.Context, task deliveryTask, sub *model.WebhookSubscription, lastErr error) {
	d.logger.Error("webhook delivery permanently failed",
		"subscription_id", task.SubscriptionID, "job_id", task.CaptureJobID,
		"attempts", task.Attempt+1, "err", lastErr)

	failure := notify.WebhookFailure{
		SubscriptionID: task.SubscriptionID,
		CaptureJobID:   task.CaptureJobID,
		Attempts:       task.Attempt + 1,
		LastError:      lastErr.Error(),
		OccurredAt:     time.Now().UTC(),
	}
	if sub != nil {
		failure.CallbackURL = sub.CallbackURL
		failure.OwnerEmail = sub.OwnerEmail
	}
	if err := d.notifier.SendWebhookFailure(ctx, failure); err != nil {
		d.logger.Error("failed to send webhook failure alert",
			"subscription_id", task.SubscriptionID, "err", err)
	}
}

// backoffDelay doubles per attempt: 1s, 2s, 4s, ...
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}
