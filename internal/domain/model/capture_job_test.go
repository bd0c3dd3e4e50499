package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusInvalid} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Status("running").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusInvalid.Terminal())
}

func TestStatus_UnmarshalText(t *testing.T) {
	var s Status
	require.NoError(t, s.UnmarshalText([]byte(" In_Progress ")))
	assert.Equal(t, StatusInProgress, s)

	require.Error(t, s.UnmarshalText([]byte("bogus")))
}

func TestCreateCaptureJobRequest_Validate(t *testing.T) {
	t.Run("user id required", func(t *testing.T) {
		req := &CreateCaptureJobRequest{RequestedURL: "example.com"}
		require.Error(t, req.Validate())
	})

	t.Run("empty url is allowed at intake", func(t *testing.T) {
		// URL validation is the engine's job; a bad URL still gets a row
		// so it can be marked invalid.
		req := &CreateCaptureJobRequest{UserID: "u1"}
		require.NoError(t, req.Validate())
	})
}

func TestCaptureJob_ChangeTracking(t *testing.T) {
	job := &CaptureJob{
		ID:     "j1",
		Status: StatusPending,
	}

	t.Run("unsaved job reports everything changed", func(t *testing.T) {
		assert.True(t, job.StatusChanged())
		assert.True(t, job.ProgressChanged())
		assert.True(t, job.ValidatedURLChanged())
	})

	job.ResetOriginalState()

	t.Run("baseline reports nothing changed", func(t *testing.T) {
		assert.False(t, job.StatusChanged())
		assert.False(t, job.ProgressChanged())
		assert.False(t, job.ValidatedURLChanged())
		assert.False(t, job.MessageChanged())
	})

	t.Run("status move is detected", func(t *testing.T) {
		job.Status = StatusInProgress
		assert.True(t, job.StatusChanged())
		assert.False(t, job.ProgressChanged())
	})

	t.Run("progress move is detected", func(t *testing.T) {
		job.IncProgress(1, "Validating.")
		assert.True(t, job.ProgressChanged())
		assert.InDelta(t, 1.0, job.StepCount, 0.001)
		assert.Equal(t, "Validating.", job.StepDescription)
	})

	t.Run("validated url set is detected", func(t *testing.T) {
		u := "http://example.com"
		job.ValidatedURL = &u
		assert.True(t, job.ValidatedURLChanged())
	})

	t.Run("message set is detected", func(t *testing.T) {
		job.Message = json.RawMessage(`{"requested_url":["invalid"]}`)
		assert.True(t, job.MessageChanged())
	})

	t.Run("reset re-baselines", func(t *testing.T) {
		job.ResetOriginalState()
		assert.False(t, job.StatusChanged())
		assert.False(t, job.ProgressChanged())
		assert.False(t, job.ValidatedURLChanged())
		assert.False(t, job.MessageChanged())
	})
}

func TestArchive_Expired(t *testing.T) {
	now := time.Now()
	url := "https://storage.example.com/archives/j1.wacz?X-Goog-Expires=300"
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		archive Archive
		want    bool
	}{
		{"no url", Archive{DownloadExpirationTimestamp: &past}, false},
		{"url set, expired", Archive{DownloadURL: &url, DownloadExpirationTimestamp: &past}, true},
		{"url set, fresh", Archive{DownloadURL: &url, DownloadExpirationTimestamp: &future}, false},
		{"url set, no expiry recorded", Archive{DownloadURL: &url}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.archive.Expired(now))
		})
	}
}

func TestArchiveFilename(t *testing.T) {
	assert.Equal(t, "archives/abc.wacz", ArchiveFilename("abc"))
	a := &Archive{CaptureJobID: "abc"}
	assert.Equal(t, "archives/abc.wacz", a.Filename())
}

func TestCreateArchiveRequest_Validate(t *testing.T) {
	valid := CreateArchiveRequest{
		CaptureJobID:  "j1",
		Hash:          "deadbeef",
		HashAlgorithm: "sha256",
		Size:          1024,
	}
	require.NoError(t, valid.Validate())

	missingJob := valid
	missingJob.CaptureJobID = " "
	require.Error(t, missingJob.Validate())

	missingHash := valid
	missingHash.Hash = ""
	require.Error(t, missingHash.Validate())

	zeroSize := valid
	zeroSize.Size = 0
	require.Error(t, zeroSize.Validate())
}

func TestCreateWebhookSubscriptionRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateWebhookSubscriptionRequest
		wantErr bool
	}{
		{
			name: "valid",
			req: CreateWebhookSubscriptionRequest{
				UserID:      "u1",
				CallbackURL: "https://example.com/hook",
				EventType:   EventArchiveCreated,
			},
		},
		{
			name: "missing user",
			req: CreateWebhookSubscriptionRequest{
				CallbackURL: "https://example.com/hook",
				EventType:   EventArchiveCreated,
			},
			wantErr: true,
		},
		{
			name: "ftp callback",
			req: CreateWebhookSubscriptionRequest{
				UserID:      "u1",
				CallbackURL: "ftp://example.com/hook",
				EventType:   EventArchiveCreated,
			},
			wantErr: true,
		},
		{
			name: "unknown event type",
			req: CreateWebhookSubscriptionRequest{
				UserID:      "u1",
				CallbackURL: "https://example.com/hook",
				EventType:   EventType("ARCHIVE_DELETED"),
			},
			wantErr: true,
		},
		{
			name: "unsupported algorithm",
			req: CreateWebhookSubscriptionRequest{
				UserID:      "u1",
				CallbackURL: "https://example.com/hook",
				EventType:   EventArchiveCreated,
				Algorithm:   SigningAlgorithm("md5"),
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
