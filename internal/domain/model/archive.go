package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Archive holds the artifact and metadata produced by a completed capture.
// An Archive row exists if and only if its CaptureJob reached completed with
// a produced artifact. The row is never deleted: the janitor clears
// DownloadURL when the signed URL expires and the rest persists as a
// historical record.
type Archive struct {
	ID           string `json:"id"             db:"id"`
	CaptureJobID string `json:"capture_job_id" db:"capture_job_id"`

	Hash          string `json:"hash"           db:"hash"`
	HashAlgorithm string `json:"hash_algorithm" db:"hash_algorithm"`
	Size          int64  `json:"size"           db:"size"`

	DownloadURL                 *string    `json:"download_url,omitempty" db:"download_url"`
	DownloadExpirationTimestamp *time.Time `json:"download_expiration_timestamp,omitempty" db:"download_expiration_timestamp"`

	CaptureSoftware   string          `json:"capture_software" db:"capture_software"`
	PartialCapture    bool            `json:"partial_capture"  db:"partial_capture"`
	Summary           json.RawMessage `json:"summary,omitempty"     db:"summary"`
	Datapackage       json.RawMessage `json:"datapackage,omitempty" db:"datapackage"`
	DatapackageDigest string          `json:"datapackage_digest"    db:"datapackage_digest"`

	ScreenshotName *string `json:"screenshot_name,omitempty" db:"screenshot_name"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ArchiveFilename returns the deterministic object name for a job's artifact.
// Deriving it from the job id means duplicate names cannot occur.
func ArchiveFilename(captureJobID string) string {
	return "archives/" + captureJobID + ".wacz"
}

// Filename returns the deterministic object name for the archive artifact.
func (a *Archive) Filename() string {
	return ArchiveFilename(a.CaptureJobID)
}

// Expired reports whether the signed download URL is still set but past its
// expiration at the given instant.
func (a *Archive) Expired(now time.Time) bool {
	if a.DownloadURL == nil || *a.DownloadURL == "" {
		return false
	}
	if a.DownloadExpirationTimestamp == nil {
		return false
	}
	return a.DownloadExpirationTimestamp.Before(now)
}

// CreateArchiveRequest carries the finalized artifact metadata into the store.
type CreateArchiveRequest struct {
	CaptureJobID                string
	Hash                        string
	HashAlgorithm               string
	Size                        int64
	DownloadURL                 string
	DownloadExpirationTimestamp time.Time
	CaptureSoftware             string
	PartialCapture              bool
	Summary                     json.RawMessage
	Datapackage                 json.RawMessage
	DatapackageDigest           string
	ScreenshotName              *string
}

// Validate validates the CreateArchiveRequest fields.
func (r *CreateArchiveRequest) Validate() error {
	if strings.TrimSpace(r.CaptureJobID) == "" {
		return errors.New("capture_job_id is required")
	}
	if r.Hash == "" || r.HashAlgorithm == "" {
		return errors.New("hash and hash_algorithm are required")
	}
	if r.Size <= 0 {
		return errors.New("size must be positive")
	}
	return nil
}
