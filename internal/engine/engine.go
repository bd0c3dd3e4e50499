package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/core"
	"github.com/capturelab/scoopd/internal/domain/capture"
	"github.com/capturelab/scoopd/internal/domain/model"
	"github.com/capturelab/scoopd/internal/observability/metrics"
	"github.com/capturelab/scoopd/internal/observability/notify"
	"github.com/capturelab/scoopd/internal/observability/statsd"
)

// ErrNoArchiveProduced signals that the capture process left no artifact
// behind to salvage.
var ErrNoArchiveProduced = errors.New("no archive produced")

// FinalizeInput points the finalizer at the artifacts of one finished run.
type FinalizeInput struct {
	ArchivePath string
	SummaryPath string
	OutputDir   string
}

// Finalizer turns a run's artifacts into a stored, recorded archive.
// Implementations return ErrNoArchiveProduced (possibly wrapped) when the
// artifact file is absent.
type Finalizer interface {
	Finalize(ctx context.Context, job *model.CaptureJob, in FinalizeInput) (*model.Archive, error)
}

// ArchiveObserver is notified exactly once per created archive. The webhook
// dispatcher hangs off this hook.
type ArchiveObserver interface {
	OnArchiveCreated(ctx context.Context, job *model.CaptureJob, archive *model.Archive)
}

// Options bundles the dependencies for constructing an Engine.
type Options struct {
	Jobs      core.CaptureJobRepository
	Runtime   Runtime
	Finalizer Finalizer
	Observer  ArchiveObserver
	Config    *config.CaptureConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
	Notifier  notify.Sink
}

// Engine executes one claimed capture job at a time, funneling every exit
// path to a terminal status.
type Engine struct {
	jobs      core.CaptureJobRepository
	runtime   Runtime
	finalizer Finalizer
	observer  ArchiveObserver
	cfg       *config.CaptureConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	notifier  notify.Sink
}

// New creates an Engine from the given options.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	return &Engine{
		jobs:      opts.Jobs,
		runtime:   opts.Runtime,
		finalizer: opts.Finalizer,
		observer:  opts.Observer,
		cfg:       opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
		notifier:  notifier,
	}
}

// Run drives a claimed job to a terminal status. It never returns with the
// job still in_progress: every path, the watchdog's forced stop included,
// ends in the finalize funnel, and the funnel's last act is a terminal
// write. The returned error reports engine-internal trouble to the caller's
// logs; the job's own outcome lives in its status.
func (e *Engine) Run(ctx context.Context, job *model.CaptureJob) error {
	started := time.Now()

	e.incProgress(ctx, job, 0, "Validating.")
	validated, err := capture.ValidateURL(job.RequestedURL)
	if err != nil {
		var verr *capture.ValidationError
		if errors.As(err, &verr) {
			if markErr := e.jobs.MarkInvalid(ctx, job, verr.Messages); markErr != nil {
				return fmt.Errorf("mark invalid: %w", markErr)
			}
			e.emit("invalid", metrics.ResultSuccess, started, nil)
			return nil
		}
		return fmt.Errorf("validate url: %w", err)
	}
	job.ValidatedURL = &validated
	if saveErr := e.jobs.Save(ctx, job); saveErr != nil {
		e.failJob(ctx, job, "Failed during capture.")
		return fmt.Errorf("save validated url: %w", saveErr)
	}

	spec, runErr := e.runCapture(ctx, job)
	finalErr := e.finalize(ctx, job, spec)

	switch {
	case runErr != nil:
		e.emit("capture", metrics.ResultError, started, runErr)
	case finalErr != nil:
		e.emit("finalize", metrics.ResultError, started, finalErr)
	default:
		e.emit("capture", metrics.ResultSuccess, started, nil)
	}
	return errors.Join(runErr, finalErr)
}

// runCapture prepares the working directory, launches the process, and
// supervises it to exit or forced stop. It always returns the CommandSpec
// so the finalize funnel knows where to look for salvageable artifacts.
func (e *Engine) runCapture(ctx context.Context, job *model.CaptureJob) (CommandSpec, error) {
	e.incProgress(ctx, job, 1, "Preparing capture directory.")
	outputDir := filepath.Join(e.cfg.WorkDir, job.ID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return CommandSpec{OutputDir: outputDir}, fmt.Errorf("create output dir: %w", err)
	}

	e.incProgress(ctx, job, 1, "Creating Scoop invocation.")
	spec := BuildCommand(job, e.cfg, outputDir)
	e.logger.Info("scoop command assembled", "job_id", job.ID, "command", spec.Command, "args", spec.Args)

	e.incProgress(ctx, job, 1, "Starting Scoop.")
	process, err := e.runtime.Start(ctx, spec)
	if err != nil {
		return spec, fmt.Errorf("start capture process: %w", err)
	}

	wd := newWatchdog(process, e.cfg.FatalTimeout)
	wd.Start(ctx)

	router := &outputRouter{job: job, logger: e.logger}
	softDeadline := time.Now().Add(e.cfg.SoftTimeout)
	softLogged := false

	scanner := bufio.NewScanner(process.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		router.handle(scanner.Text())
		if router.progressed {
			router.progressed = false
			if saveErr := e.jobs.Save(ctx, job); saveErr != nil {
				e.logger.Error("failed to persist capture progress", "job_id", job.ID, "err", saveErr)
			}
		}
		// Soft limit: log once and keep going.
		if !softLogged && time.Now().After(softDeadline) {
			e.logger.Warn("soft timeout while capturing", "job_id", job.ID)
			softLogged = true
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		e.logger.Warn("capture output stream broke", "job_id", job.ID, "err", scanErr)
	}

	result := wd.Join()
	if result.TimedOut {
		e.logger.Error("capture hit fatal timeout, process stopped", "job_id", job.ID, "exit_code", result.ExitCode)
	}
	if result.ExitCode != 0 {
		e.logger.Error("scoop exited abnormally",
			"job_id", job.ID, "exit_code", result.ExitCode,
			"signal", exitSignal(result.ExitCode), "stderr", process.Stderr())
		return spec, fmt.Errorf("capture process exited with %d", result.ExitCode)
	}
	if result.Err != nil {
		return spec, fmt.Errorf("supervise capture process: %w", result.Err)
	}
	return spec, nil
}

// exitSignal names the signal behind the conventional 128+N exit codes.
func exitSignal(code int) string {
	switch code {
	case 137:
		return "SIGKILL"
	case 143:
		return "SIGTERM"
	default:
		return ""
	}
}

// finalize is the single funnel every capture run passes through. Whatever
// happened upstream, it salvages any artifact, records the archive, and
// guarantees a terminal status before returning.
func (e *Engine) finalize(ctx context.Context, job *model.CaptureJob, spec CommandSpec) (err error) {
	defer func() {
		if spec.OutputDir != "" {
			if rmErr := os.RemoveAll(spec.OutputDir); rmErr != nil {
				e.logger.Warn("failed to remove capture output dir", "job_id", job.ID, "err", rmErr)
			}
		}
		if job.Status == model.StatusInProgress {
			e.failJob(ctx, job, "Failed during capture.")
		}
	}()

	if spec.ArchivePath == "" {
		return nil
	}

	archive, finErr := e.finalizer.Finalize(ctx, job, FinalizeInput{
		ArchivePath: spec.ArchivePath,
		SummaryPath: spec.SummaryPath,
		OutputDir:   spec.OutputDir,
	})
	if finErr != nil {
		if errors.Is(finErr, ErrNoArchiveProduced) {
			e.logger.Info("capture failed", "job_id", job.ID)
			return nil
		}
		e.logger.Error("exception while finishing capture", "job_id", job.ID, "err", finErr)
		e.sendEngineAlert(ctx, job, "finalize", finErr)
		return finErr
	}

	if markErr := e.jobs.MarkCompleted(ctx, job); markErr != nil {
		return fmt.Errorf("mark completed: %w", markErr)
	}
	e.logger.Info("capture succeeded", "job_id", job.ID)

	if e.observer != nil {
		e.observer.OnArchiveCreated(ctx, job, archive)
	}
	return nil
}

func (e *Engine) incProgress(ctx context.Context, job *model.CaptureJob, inc float64, description string) {
	job.IncProgress(inc, description)
	e.logger.Info("capture step", "job_id", job.ID, "step", job.StepCount, "description", job.StepDescription)
	if err := e.jobs.Save(ctx, job); err != nil {
		e.logger.Error("failed to persist progress", "job_id", job.ID, "err", err)
	}
}

func (e *Engine) failJob(ctx context.Context, job *model.CaptureJob, message string) {
	if err := e.jobs.MarkFailed(ctx, job, message); err != nil {
		e.logger.Error("failed to mark job failed", "job_id", job.ID, "err", err)
	}
}

func (e *Engine) sendEngineAlert(ctx context.Context, job *model.CaptureJob, stage string, cause error) {
	alertErr := e.notifier.SendEngineFailure(ctx, notify.EngineFailure{
		CaptureJobID: job.ID,
		Stage:        stage,
		Error:        cause.Error(),
		OccurredAt:   time.Now().UTC(),
	})
	if alertErr != nil {
		e.logger.Error("failed to send engine failure alert", "job_id", job.ID, "err", alertErr)
	}
}

func (e *Engine) emit(transition, result string, started time.Time, cause error) {
	metrics.EmitCaptureLifecycle(e.metrics, metrics.CaptureMetric{
		Transition: transition,
		Result:     result,
		Duration:   time.Since(started),
		Err:        cause,
	})
}
