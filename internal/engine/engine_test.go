package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/domain/model"
	"github.com/capturelab/scoopd/internal/observability/notify"
)

type memJobs struct {
	saves       int
	invalidMsgs []string
	failMsgs    []string
	completed   int
}

func (m *memJobs) Create(context.Context, *model.CreateCaptureJobRequest) (*model.CaptureJob, error) {
	return nil, nil
}
func (m *memJobs) GetByID(context.Context, string) (*model.CaptureJob, error) { return nil, nil }
func (m *memJobs) GetNextJob(context.Context) (*model.CaptureJob, error)     { return nil, nil }

func (m *memJobs) Save(_ context.Context, job *model.CaptureJob) error {
	m.saves++
	job.ResetOriginalState()
	return nil
}

func (m *memJobs) MarkCompleted(_ context.Context, job *model.CaptureJob) error {
	if job.Status.Terminal() {
		return nil
	}
	job.Status = model.StatusCompleted
	job.ResetOriginalState()
	m.completed++
	return nil
}

func (m *memJobs) MarkFailed(_ context.Context, job *model.CaptureJob, message string) error {
	if job.Status.Terminal() {
		return nil
	}
	job.Status = model.StatusFailed
	job.ResetOriginalState()
	m.failMsgs = append(m.failMsgs, message)
	return nil
}

func (m *memJobs) MarkInvalid(_ context.Context, job *model.CaptureJob, messages []string) error {
	if job.Status.Terminal() {
		return nil
	}
	job.Status = model.StatusInvalid
	job.ResetOriginalState()
	m.invalidMsgs = append(m.invalidMsgs, messages...)
	return nil
}

func (m *memJobs) FailStaleJobs(context.Context, time.Duration, int) ([]string, error) {
	return nil, nil
}
func (m *memJobs) PendingCountForUser(context.Context, string) (int, error) { return 0, nil }

// fakeProcess scripts one capture tool run: canned stdout, an exit code, and
// an optional delay before exit so the watchdog path can be exercised.
type fakeProcess struct {
	stdout   string
	exitCode int
	delay    time.Duration
	stderr   string

	stopOnce sync.Once
	stopped  chan struct{}
}

func newFakeProcess(stdout string, exitCode int, delay time.Duration) *fakeProcess {
	return &fakeProcess{
		stdout:   stdout,
		exitCode: exitCode,
		delay:    delay,
		stopped:  make(chan struct{}),
	}
}

func (p *fakeProcess) Stdout() io.Reader { return strings.NewReader(p.stdout) }

func (p *fakeProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-time.After(p.delay):
		return p.exitCode, nil
	case <-p.stopped:
		return 137, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *fakeProcess) Stop() error {
	p.stopOnce.Do(func() { close(p.stopped) })
	return nil
}

func (p *fakeProcess) Stderr() string { return p.stderr }

func (p *fakeProcess) wasStopped() bool {
	select {
	case <-p.stopped:
		return true
	default:
		return false
	}
}

type fakeRuntime struct {
	process  *fakeProcess
	startErr error
	started  int
	lastSpec CommandSpec
}

func (r *fakeRuntime) Start(_ context.Context, spec CommandSpec) (Process, error) {
	r.started++
	r.lastSpec = spec
	if r.startErr != nil {
		return nil, r.startErr
	}
	return r.process, nil
}

type fakeFinalizer struct {
	archive *model.Archive
	err     error
	calls   int
	lastIn  FinalizeInput
}

func (f *fakeFinalizer) Finalize(_ context.Context, _ *model.CaptureJob, in FinalizeInput) (*model.Archive, error) {
	f.calls++
	f.lastIn = in
	return f.archive, f.err
}

type fakeObserver struct {
	archives []*model.Archive
}

func (o *fakeObserver) OnArchiveCreated(_ context.Context, _ *model.CaptureJob, archive *model.Archive) {
	o.archives = append(o.archives, archive)
}

type fakeNotifier struct {
	engineFailures  []notify.EngineFailure
	webhookFailures []notify.WebhookFailure
}

func (n *fakeNotifier) SendEngineFailure(_ context.Context, payload notify.EngineFailure) error {
	n.engineFailures = append(n.engineFailures, payload)
	return nil
}

func (n *fakeNotifier) SendWebhookFailure(_ context.Context, payload notify.WebhookFailure) error {
	n.webhookFailures = append(n.webhookFailures, payload)
	return nil
}

type engineHarness struct {
	engine    *Engine
	jobs      *memJobs
	runtime   *fakeRuntime
	finalizer *fakeFinalizer
	observer  *fakeObserver
	notifier  *fakeNotifier
	cfg       *config.CaptureConfig
}

func newEngineHarness(t *testing.T, process *fakeProcess) *engineHarness {
	t.Helper()

	cfg := &config.CaptureConfig{
		Command:      "scoop-test",
		Args:         []string{"scoop"},
		WorkDir:      t.TempDir(),
		FatalTimeout: 5 * time.Minute,
		SoftTimeout:  time.Minute,
	}
	h := &engineHarness{
		jobs:      &memJobs{},
		runtime:   &fakeRuntime{process: process},
		finalizer: &fakeFinalizer{},
		observer:  &fakeObserver{},
		notifier:  &fakeNotifier{},
		cfg:       cfg,
	}
	h.engine = New(Options{
		Jobs:      h.jobs,
		Runtime:   h.runtime,
		Finalizer: h.finalizer,
		Observer:  h.observer,
		Config:    cfg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Notifier:  h.notifier,
	})
	return h
}

func claimedJob(requestedURL string) *model.CaptureJob {
	job := &model.CaptureJob{
		ID:           "job-1",
		UserID:       "alice",
		RequestedURL: requestedURL,
		Status:       model.StatusInProgress,
	}
	job.ResetOriginalState()
	return job
}

func TestEngine_Run_InvalidURL(t *testing.T) {
	h := newEngineHarness(t, newFakeProcess("", 0, 0))
	job := claimedJob("badhost")

	err := h.engine.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, model.StatusInvalid, job.Status)
	assert.NotEmpty(t, h.jobs.invalidMsgs)
	assert.Zero(t, h.runtime.started, "invalid jobs never launch a process")
	assert.Zero(t, h.finalizer.calls)
}

func TestEngine_Run_Success(t *testing.T) {
	stdout := strings.Join([]string{
		"[2026-01-01] INFO STEP [1/5]: Initial page load",
		"chatter line the router only logs",
		"[2026-01-01] INFO Exporting capture",
	}, "\n")
	h := newEngineHarness(t, newFakeProcess(stdout, 0, 10*time.Millisecond))
	h.finalizer.archive = &model.Archive{ID: "arc-1", CaptureJobID: "job-1"}
	job := claimedJob("example.com")

	err := h.engine.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Equal(t, 1, h.jobs.completed)
	require.NotNil(t, job.ValidatedURL)
	assert.Equal(t, "http://example.com", *job.ValidatedURL)

	require.Len(t, h.observer.archives, 1)
	assert.Equal(t, "arc-1", h.observer.archives[0].ID)

	assert.Equal(t, 1, h.finalizer.calls)
	assert.Equal(t, h.runtime.lastSpec.ArchivePath, h.finalizer.lastIn.ArchivePath)
	assert.Contains(t, job.StepDescription, "[Scoop]")
	assert.Empty(t, h.jobs.failMsgs)
}

func TestEngine_Run_AbnormalExitWithSalvage(t *testing.T) {
	h := newEngineHarness(t, newFakeProcess("", 1, 10*time.Millisecond))
	h.finalizer.archive = &model.Archive{ID: "arc-1", CaptureJobID: "job-1"}
	job := claimedJob("example.com")

	err := h.engine.Run(context.Background(), job)
	require.Error(t, err)

	// The artifact was salvageable, so the job still completes.
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Len(t, h.observer.archives, 1)
}

func TestEngine_Run_AbnormalExitNoArtifact(t *testing.T) {
	h := newEngineHarness(t, newFakeProcess("", 1, 10*time.Millisecond))
	h.finalizer.err = fmt.Errorf("missing: %w", ErrNoArchiveProduced)
	job := claimedJob("example.com")

	err := h.engine.Run(context.Background(), job)
	require.Error(t, err)

	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, h.jobs.failMsgs, "Failed during capture.")
	assert.Empty(t, h.observer.archives)
	assert.Empty(t, h.notifier.engineFailures, "a missing artifact is not an exception")
}

func TestEngine_Run_FinalizeExceptionAlerts(t *testing.T) {
	h := newEngineHarness(t, newFakeProcess("", 0, 10*time.Millisecond))
	h.finalizer.err = errors.New("bucket unreachable")
	job := claimedJob("example.com")

	err := h.engine.Run(context.Background(), job)
	require.Error(t, err)

	assert.Equal(t, model.StatusFailed, job.Status)
	require.Len(t, h.notifier.engineFailures, 1)
	assert.Equal(t, "job-1", h.notifier.engineFailures[0].CaptureJobID)
	assert.Equal(t, "finalize", h.notifier.engineFailures[0].Stage)
}

func TestEngine_Run_WatchdogStopsRunawayProcess(t *testing.T) {
	process := newFakeProcess("", 0, 10*time.Second)
	h := newEngineHarness(t, process)
	h.cfg.FatalTimeout = 50 * time.Millisecond
	h.finalizer.err = fmt.Errorf("missing: %w", ErrNoArchiveProduced)
	job := claimedJob("example.com")

	err := h.engine.Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "137")

	assert.True(t, process.wasStopped())
	assert.Equal(t, model.StatusFailed, job.Status)
}

func TestEngine_Run_StartFailureStillFailsJob(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.runtime.startErr = errors.New("runtime unavailable")
	h.finalizer.err = fmt.Errorf("missing: %w", ErrNoArchiveProduced)
	job := claimedJob("example.com")

	err := h.engine.Run(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
}

func TestEngine_Run_OutputDirRemoved(t *testing.T) {
	h := newEngineHarness(t, newFakeProcess("", 0, 10*time.Millisecond))
	h.finalizer.archive = &model.Archive{ID: "arc-1", CaptureJobID: "job-1"}
	job := claimedJob("example.com")

	require.NoError(t, h.engine.Run(context.Background(), job))

	_, statErr := os.Stat(filepath.Join(h.cfg.WorkDir, job.ID))
	assert.True(t, os.IsNotExist(statErr), "per-job output dir should be cleaned up")
}
