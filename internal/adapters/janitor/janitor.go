// Package janitor expires stale archive download URLs and removes the
// underlying stored objects. Expiry runs in two phases through the task
// queue: a sweep enqueues one cleanup task per expired archive, and the
// delete step runs idempotently so at-least-once redelivery is safe.
package janitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/core"
	"github.com/capturelab/scoopd/internal/domain/model"
	"github.com/capturelab/scoopd/internal/observability/metrics"
	"github.com/capturelab/scoopd/internal/observability/statsd"
)

// QueueCleanup is the task queue name for archive cleanup tasks.
const QueueCleanup = "archive-cleanup"

// cleanupTask identifies one expired archive and the objects it owns.
type cleanupTask struct {
	ArchiveID      string  `json:"archive_id"`
	CaptureJobID   string  `json:"capture_job_id"`
	ScreenshotName *string `json:"screenshot_name,omitempty"`
}

// Options groups dependencies for the Runner.
type Options struct {
	Archives core.ArchiveRepository // Required: archive repository
	Store    core.ObjectStore       // Required: object store
	Queue    core.TaskQueue         // Required: task queue
	Config   config.JanitorConfig   // Required: janitor configuration
	Logger   *slog.Logger           // Optional: structured logger
	Metrics  statsd.Sink            // Optional: metrics sink
}

// Runner performs the periodic archive cleanup.
type Runner struct {
	archives core.ArchiveRepository
	store    core.ObjectStore
	queue    core.TaskQueue
	cfg      config.JanitorConfig
	logger   *slog.Logger
	metrics  statsd.Sink
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Archives == nil {
		return nil, errors.New("ArchiveRepository is required")
	}
	if opts.Store == nil {
		return nil, errors.New("ObjectStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("TaskQueue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		archives: opts.Archives,
		store:    opts.Store,
		queue:    opts.Queue,
		cfg:      opts.Config,
		logger:   logger.With("component", "janitor"),
		metrics:  opts.Metrics,
	}, nil
}

// Run sweeps and drains immediately, then on every tick until the context
// is cancelled. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting archive janitor", "interval", r.cfg.Interval)

	r.pass(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "archive janitor stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	if err := r.Sweep(ctx); err != nil {
		r.logger.Error("janitor sweep failed", "err", err)
	}
	if err := r.Drain(ctx); err != nil {
		r.logger.Error("janitor drain failed", "err", err)
	}
}

// Sweep enqueues one cleanup task per expired archive, up to the batch size.
func (r *Runner) Sweep(ctx context.Context) error {
	expired, err := r.archives.ListExpired(ctx, time.Now().UTC(), r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, archive := range expired {
		payload, err := json.Marshal(cleanupTask{
			ArchiveID:      archive.ID,
			CaptureJobID:   archive.CaptureJobID,
			ScreenshotName: archive.ScreenshotName,
		})
		if err != nil {
			return err
		}
		if err := r.queue.Enqueue(ctx, QueueCleanup, payload); err != nil {
			return err
		}
		r.logger.Info("archive expired, cleanup enqueued", "archive_id", archive.ID)
	}

	metrics.EmitSweep(r.metrics, "janitor", int64(len(expired)))
	return nil
}

// Drain processes queued cleanup tasks until the queue is empty.
func (r *Runner) Drain(ctx context.Context) error {
	for {
		raw, err := r.queue.Dequeue(ctx, QueueCleanup)
		if err != nil {
			return err
		}
		if raw == nil {
			return nil
		}
		r.Handle(ctx, raw)
	}
}

// Handle performs one cleanup: clear the download URL, then delete the
// stored objects. The URL clear doubles as the idempotency gate, so a task
// redelivered after a completed cleanup deletes nothing twice.
func (r *Runner) Handle(ctx context.Context, raw []byte) {
	var task cleanupTask
	if err := json.Unmarshal(raw, &task); err != nil {
		r.logger.Error("dropping malformed cleanup task", "err", err)
		return
	}

	cleared, err := r.archives.ClearDownloadURL(ctx, task.ArchiveID)
	if err != nil {
		r.logger.Error("failed to clear archive download url", "archive_id", task.ArchiveID, "err", err)
		return
	}
	if !cleared {
		r.logger.Info("archive already cleaned up", "archive_id", task.ArchiveID)
		return
	}

	if err := r.store.Delete(ctx, model.ArchiveFilename(task.CaptureJobID)); err != nil {
		r.logger.Error("failed to delete archive object", "archive_id", task.ArchiveID, "err", err)
	}
	if task.ScreenshotName != nil {
		if err := r.store.Delete(ctx, *task.ScreenshotName); err != nil {
			r.logger.Error("failed to delete screenshot object", "archive_id", task.ArchiveID, "err", err)
		}
	}
	r.logger.Info("archive cleaned up", "archive_id", task.ArchiveID)
}
