package janitor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/domain/model"
	"github.com/capturelab/scoopd/internal/storage/memory"
	"github.com/capturelab/scoopd/internal/taskq"
)

// fakeArchives serves ListExpired from a fixed slice and tracks which
// archives have had their URL cleared.
type fakeArchives struct {
	expired []*model.Archive
	cleared map[string]bool
}

func (f *fakeArchives) Create(context.Context, *model.CreateArchiveRequest) (*model.Archive, error) {
	return nil, nil
}
func (f *fakeArchives) GetByJobID(context.Context, string) (*model.Archive, error) { return nil, nil }

func (f *fakeArchives) ListExpired(context.Context, time.Time, int) ([]*model.Archive, error) {
	var out []*model.Archive
	for _, a := range f.expired {
		if !f.cleared[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeArchives) ClearDownloadURL(_ context.Context, archiveID string) (bool, error) {
	if f.cleared[archiveID] {
		return false, nil
	}
	f.cleared[archiveID] = true
	return true, nil
}

func expiredArchive(t *testing.T, store *memory.Store, withScreenshot bool) *model.Archive {
	t.Helper()

	jobID := uuid.NewString()
	src := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, os.WriteFile(src, []byte("wacz-bytes"), 0o644))
	_, err := store.Put(context.Background(), model.ArchiveFilename(jobID), src)
	require.NoError(t, err)

	archive := &model.Archive{ID: uuid.NewString(), CaptureJobID: jobID}
	if withScreenshot {
		name := "archives/" + jobID + ".png"
		_, err := store.Put(context.Background(), name, src)
		require.NoError(t, err)
		archive.ScreenshotName = &name
	}
	return archive
}

func newTestRunner(t *testing.T, archives *fakeArchives, store *memory.Store, queue *taskq.MemoryQueue) *Runner {
	t.Helper()
	r, err := New(Options{
		Archives: archives,
		Store:    store,
		Queue:    queue,
		Config:   config.JanitorConfig{Interval: time.Minute, BatchSize: 100},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return r
}

func TestJanitor_SweepAndDrain(t *testing.T) {
	store := memory.NewStore()
	withShot := expiredArchive(t, store, true)
	withoutShot := expiredArchive(t, store, false)
	archives := &fakeArchives{expired: []*model.Archive{withShot, withoutShot}, cleared: map[string]bool{}}
	queue := taskq.NewMemoryQueue()
	r := newTestRunner(t, archives, store, queue)

	ctx := context.Background()
	require.NoError(t, r.Sweep(ctx))
	require.NoError(t, r.Drain(ctx))

	assert.Zero(t, store.Len(), "all expired objects should be deleted")
	assert.True(t, archives.cleared[withShot.ID])
	assert.True(t, archives.cleared[withoutShot.ID])
}

func TestJanitor_HandleIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	archive := expiredArchive(t, store, true)
	archives := &fakeArchives{expired: []*model.Archive{archive}, cleared: map[string]bool{}}
	queue := taskq.NewMemoryQueue()
	r := newTestRunner(t, archives, store, queue)

	ctx := context.Background()
	require.NoError(t, r.Sweep(ctx))
	raw, err := queue.Dequeue(ctx, QueueCleanup)
	require.NoError(t, err)
	require.NotNil(t, raw)

	// Redelivery of the same task performs the delete at most once and
	// leaves the URL cleared after both invocations.
	r.Handle(ctx, raw)
	r.Handle(ctx, raw)

	assert.Zero(t, store.Len())
	assert.True(t, archives.cleared[archive.ID])
}

func TestJanitor_SecondSweepFindsNothing(t *testing.T) {
	store := memory.NewStore()
	archive := expiredArchive(t, store, false)
	archives := &fakeArchives{expired: []*model.Archive{archive}, cleared: map[string]bool{}}
	queue := taskq.NewMemoryQueue()
	r := newTestRunner(t, archives, store, queue)

	ctx := context.Background()
	require.NoError(t, r.Sweep(ctx))
	require.NoError(t, r.Drain(ctx))
	require.NoError(t, r.Sweep(ctx))

	raw, err := queue.Dequeue(ctx, QueueCleanup)
	require.NoError(t, err)
	assert.Nil(t, raw, "cleaned archives must not be re-enqueued")
}
