// Package capturerunner hosts the worker loop that claims pending capture
// jobs and drives them through the execution engine.
package capturerunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/core"
	"github.com/capturelab/scoopd/internal/domain/model"
)

// JobEngine executes one claimed job to a terminal status.
type JobEngine interface {
	Run(ctx context.Context, job *model.CaptureJob) error
}

// Options groups dependencies for the Runner.
type Options struct {
	Jobs   core.CaptureJobRepository // Required: job repository
	Engine JobEngine                 // Required: execution engine
	Config config.CaptureConfig      // Required: capture configuration
	Reaper config.ReaperConfig       // Required: inline reaper configuration
	Logger *slog.Logger              // Optional: structured logger
}

// Runner claims and executes capture jobs. Each worker reaps stale jobs
// before every scheduling decision, so stuck claims are recycled even when
// the standalone reaper service is not deployed.
type Runner struct {
	jobs   core.CaptureJobRepository
	engine JobEngine
	cfg    config.CaptureConfig
	reaper config.ReaperConfig
	logger *slog.Logger
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("CaptureJobRepository is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("JobEngine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		jobs:   opts.Jobs,
		engine: opts.Engine,
		cfg:    opts.Config,
		reaper: opts.Reaper,
		logger: logger.With("component", "capture_runner"),
	}, nil
}

// Run starts the configured number of workers and blocks until the context
// is cancelled. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.logger.InfoContext(ctx, "capture job launching disabled, idling")
		<-ctx.Done()
		return nil
	}

	r.logger.InfoContext(ctx, "starting capture runner",
		"concurrency", r.cfg.Concurrency, "poll_interval", r.cfg.PollInterval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Concurrency; i++ {
		worker := i
		g.Go(func() error { return r.workLoop(ctx, worker) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runner) workLoop(ctx context.Context, worker int) error {
	logger := r.logger.With("worker", worker)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Recycle stuck claims before deciding what to run next.
		if failed, err := r.jobs.FailStaleJobs(ctx, r.reaper.HardTimeout, r.reaper.BatchSize); err != nil {
			logger.Error("inline stale-job sweep failed", "err", err)
		} else if len(failed) > 0 {
			logger.Warn("failed stale capture jobs", "count", len(failed), "job_ids", failed)
		}

		job, err := r.jobs.GetNextJob(ctx)
		if err != nil {
			if !errors.Is(err, model.ErrNoJobsPending) {
				logger.Error("failed to claim next job", "err", err)
			}
			if waitErr := sleepCtx(ctx, r.cfg.PollInterval); waitErr != nil {
				return waitErr
			}
			continue
		}

		logger.Info("claimed capture job", "job_id", job.ID, "user_id", job.UserID)
		if runErr := r.engine.Run(ctx, job); runErr != nil {
			// Terminal status is already written by the engine's funnel;
			// the error is operational detail.
			logger.Error("capture run reported errors", "job_id", job.ID, "err", runErr)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("capture runner stopping: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
