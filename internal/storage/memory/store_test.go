package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturelab/scoopd/internal/storage"
)

func TestStore_PutSignDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	src := filepath.Join(t.TempDir(), "artifact.wacz")
	require.NoError(t, os.WriteFile(src, []byte("wacz-bytes"), 0o600))

	overwrote, err := store.Put(ctx, "archives/job-1.wacz", src)
	require.NoError(t, err)
	assert.False(t, overwrote)

	overwrote, err = store.Put(ctx, "archives/job-1.wacz", src)
	require.NoError(t, err)
	assert.True(t, overwrote, "second upload of the same name reports the collision")

	content, ok := store.Get("archives/job-1.wacz")
	require.True(t, ok)
	assert.Equal(t, []byte("wacz-bytes"), content)

	url, err := store.SignedURL(ctx, "archives/job-1.wacz", 4*time.Hour)
	require.NoError(t, err)

	expiry, err := storage.ParseExpiry(url)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(4*time.Hour), expiry, 5*time.Second)

	require.NoError(t, store.Delete(ctx, "archives/job-1.wacz"))
	_, ok = store.Get("archives/job-1.wacz")
	assert.False(t, ok)

	// Deleting again is fine.
	require.NoError(t, store.Delete(ctx, "archives/job-1.wacz"))
}

func TestStore_SignedURLMissingObject(t *testing.T) {
	store := NewStore()
	_, err := store.SignedURL(context.Background(), "archives/nope.wacz", time.Hour)
	assert.Error(t, err)
}
