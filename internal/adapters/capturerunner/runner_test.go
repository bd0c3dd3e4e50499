package capturerunner

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/domain/model"
)

// queueRepo hands out pending jobs one at a time, then reports an empty
// queue forever.
type queueRepo struct {
	mu      sync.Mutex
	pending []*model.CaptureJob
	sweeps  int
	claimed []string
}

func (q *queueRepo) Create(context.Context, *model.CreateCaptureJobRequest) (*model.CaptureJob, error) {
	return nil, nil
}
func (q *queueRepo) GetByID(context.Context, string) (*model.CaptureJob, error) { return nil, nil }

func (q *queueRepo) GetNextJob(context.Context) (*model.CaptureJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, model.ErrNoJobsPending
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Status = model.StatusInProgress
	q.claimed = append(q.claimed, job.ID)
	return job, nil
}

func (q *queueRepo) Save(context.Context, *model.CaptureJob) error               { return nil }
func (q *queueRepo) MarkCompleted(context.Context, *model.CaptureJob) error      { return nil }
func (q *queueRepo) MarkFailed(context.Context, *model.CaptureJob, string) error { return nil }
func (q *queueRepo) MarkInvalid(context.Context, *model.CaptureJob, []string) error {
	return nil
}

func (q *queueRepo) FailStaleJobs(context.Context, time.Duration, int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sweeps++
	return nil, nil
}

func (q *queueRepo) PendingCountForUser(context.Context, string) (int, error) { return 0, nil }

type recordingEngine struct {
	mu   sync.Mutex
	runs []string
	done chan struct{}
	want int
}

func (e *recordingEngine) Run(_ context.Context, job *model.CaptureJob) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, job.ID)
	if len(e.runs) == e.want {
		close(e.done)
	}
	return nil
}

func newTestRunner(t *testing.T, repo *queueRepo, eng JobEngine, enabled bool) *Runner {
	t.Helper()
	r, err := New(Options{
		Jobs:   repo,
		Engine: eng,
		Config: config.CaptureConfig{
			Enabled:      enabled,
			PollInterval: 5 * time.Millisecond,
			Concurrency:  1,
		},
		Reaper: config.ReaperConfig{HardTimeout: 7 * time.Minute, BatchSize: 100},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return r
}

func TestRunner_DrainsQueueThenIdles(t *testing.T) {
	repo := &queueRepo{pending: []*model.CaptureJob{
		{ID: "job-1", Status: model.StatusPending},
		{ID: "job-2", Status: model.StatusPending},
	}}
	eng := &recordingEngine{done: make(chan struct{}), want: 2}
	r := newTestRunner(t, repo, eng, true)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	select {
	case <-eng.done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine never saw both jobs")
	}
	cancel()
	require.NoError(t, <-errCh, "cancellation is a graceful shutdown")

	assert.Equal(t, []string{"job-1", "job-2"}, eng.runs)
	assert.Equal(t, []string{"job-1", "job-2"}, repo.claimed)
	assert.GreaterOrEqual(t, repo.sweeps, 2, "stale jobs are swept before each claim")
}

// casRepo mimics the claim protocol's conditional update: picking a
// candidate and winning it are separate locked steps, so concurrent
// claimants race on the same row and losers must reselect.
type casRepo struct {
	queueRepo
	mu   sync.Mutex
	jobs []*model.CaptureJob
	wins map[string]int
}

func (r *casRepo) nextPending() *model.CaptureJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.Status == model.StatusPending {
			return job
		}
	}
	return nil
}

func (r *casRepo) claim(job *model.CaptureJob) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.Status != model.StatusPending {
		return false
	}
	job.Status = model.StatusInProgress
	r.wins[job.ID]++
	return true
}

func (r *casRepo) GetNextJob(context.Context) (*model.CaptureJob, error) {
	for {
		job := r.nextPending()
		if job == nil {
			return nil, model.ErrNoJobsPending
		}
		// Widen the select-to-update window so claimants really collide.
		runtime.Gosched()
		if r.claim(job) {
			return job, nil
		}
	}
}

func TestRunner_ConcurrentClaimsSingleWinnerPerJob(t *testing.T) {
	const jobCount = 40

	repo := &casRepo{wins: make(map[string]int)}
	for i := 0; i < jobCount; i++ {
		repo.jobs = append(repo.jobs, &model.CaptureJob{
			ID:     "job-" + strconv.Itoa(i),
			Status: model.StatusPending,
		})
	}
	eng := &recordingEngine{done: make(chan struct{}), want: jobCount}

	r, err := New(Options{
		Jobs:   repo,
		Engine: eng,
		Config: config.CaptureConfig{
			Enabled:      true,
			PollInterval: 5 * time.Millisecond,
			Concurrency:  8,
		},
		Reaper: config.ReaperConfig{HardTimeout: 7 * time.Minute, BatchSize: 100},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	select {
	case <-eng.done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers never drained the queue")
	}
	cancel()
	require.NoError(t, <-errCh)

	require.Len(t, repo.wins, jobCount)
	for id, n := range repo.wins {
		assert.Equal(t, 1, n, "job %s won by %d claimants", id, n)
	}
	seen := make(map[string]int)
	for _, id := range eng.runs {
		seen[id]++
	}
	require.Len(t, seen, jobCount)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s executed %d times", id, n)
	}
}

func TestRunner_DisabledIdlesUntilCancelled(t *testing.T) {
	repo := &queueRepo{pending: []*model.CaptureJob{{ID: "job-1", Status: model.StatusPending}}}
	eng := &recordingEngine{done: make(chan struct{}), want: 1}
	r := newTestRunner(t, repo, eng, false)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.Empty(t, eng.runs, "disabled runner must not claim jobs")
	assert.Empty(t, repo.claimed)
}
