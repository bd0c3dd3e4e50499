// Package reaper periodically fails in_progress jobs whose capture started
// longer ago than the hard time limit, so a crashed worker can never block
// queue fairness forever.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/core"
	"github.com/capturelab/scoopd/internal/observability/metrics"
	"github.com/capturelab/scoopd/internal/observability/statsd"
)

// Options groups dependencies for the Runner.
type Options struct {
	Jobs    core.CaptureJobRepository // Required: job repository
	Config  config.ReaperConfig       // Required: reaper configuration
	Logger  *slog.Logger              // Optional: structured logger
	Metrics statsd.Sink               // Optional: metrics sink
}

// Runner sweeps stale jobs on a fixed interval.
type Runner struct {
	jobs    core.CaptureJobRepository
	cfg     config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("CaptureJobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		jobs:    opts.Jobs,
		cfg:     opts.Config,
		logger:  logger.With("component", "reaper"),
		metrics: opts.Metrics,
	}, nil
}

// Run sweeps immediately, then on every tick until the context is
// cancelled. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting timeout reaper",
		"interval", r.cfg.Interval, "hard_timeout", r.cfg.HardTimeout)

	if _, err := r.Sweep(ctx); err != nil {
		r.logger.Error("initial reaper sweep failed", "err", err)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "timeout reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reaper sweep failed", "err", err)
			}
		}
	}
}

// Sweep fails one batch of stale jobs and returns how many were failed.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	failed, err := r.jobs.FailStaleJobs(ctx, r.cfg.HardTimeout, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(failed) > 0 {
		r.logger.Warn("failed stale capture jobs", "count", len(failed), "job_ids", failed)
	}
	metrics.EmitSweep(r.metrics, "reaper", int64(len(failed)))
	return len(failed), nil
}
