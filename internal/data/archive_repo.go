package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/capturelab/scoopd/internal/errors"
	"github.com/capturelab/scoopd/internal/domain/model"
)

// ArchiveRepo provides database operations for archive management.
type ArchiveRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewArchiveRepo creates a new ArchiveRepo instance.
func NewArchiveRepo(db *sql.DB, cfg RepoConfig) *ArchiveRepo {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveRepo{DB: db, logger: logger}
}

const archiveColumns = `
  id,
  capture_job_id,
  hash,
  hash_algorithm,
  size,
  download_url,
  download_expiration_timestamp,
  capture_software,
  partial_capture,
  summary,
  datapackage,
  datapackage_digest,
  screenshot_name,
  created_at,
  updated_at
`

// Create inserts the archive row for a completed capture job. A job has at
// most one archive; a second insert for the same job maps to a conflict.
func (r *ArchiveRepo) Create(ctx context.Context, req *model.CreateArchiveRequest) (*model.Archive, error) {
	if req == nil {
		return nil, errors.New("create archive request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	summary := req.Summary
	if len(summary) == 0 {
		summary = json.RawMessage(`null`)
	}
	datapackage := req.Datapackage
	if len(datapackage) == 0 {
		datapackage = json.RawMessage(`null`)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO archives (
			id, capture_job_id, hash, hash_algorithm, size,
			download_url, download_expiration_timestamp,
			capture_software, partial_capture,
			summary, datapackage, datapackage_digest, screenshot_name
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+archiveColumns,
		uuid.NewString(), req.CaptureJobID, req.Hash, req.HashAlgorithm, req.Size,
		req.DownloadURL, req.DownloadExpirationTimestamp.UTC(),
		req.CaptureSoftware, req.PartialCapture,
		[]byte(summary), []byte(datapackage), req.DatapackageDigest, req.ScreenshotName)

	archive, err := scanArchiveFromRow(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return archive, nil
}

// GetByJobID retrieves the archive belonging to a capture job.
func (r *ArchiveRepo) GetByJobID(ctx context.Context, jobID string) (*model.Archive, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, apperrors.Validation("capture job id is required")
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT `+archiveColumns+`
		FROM archives
		WHERE capture_job_id = $1
	`, jobID)

	archive, err := scanArchiveFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("archive for capture job %s not found", jobID)
		}
		return nil, apperrors.MapDBError(err)
	}
	return archive, nil
}

// ListExpired returns archives whose download URL is set and past expiry.
// The sweep and the follow-up deletions are separate phases, so an archive
// returned here may already be cleared by the time its deletion runs; the
// delete path re-checks.
func (r *ArchiveRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.Archive, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+archiveColumns+`
		FROM archives
		WHERE download_url IS NOT NULL
		  AND download_expiration_timestamp < $1
		ORDER BY download_expiration_timestamp
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var archives []*model.Archive
	for rows.Next() {
		archive, scanErr := scanArchiveFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan archive: %w", scanErr)
		}
		archives = append(archives, archive)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return archives, nil
}

// ClearDownloadURL nulls the download URL and its expiry. Returns false when
// the URL was already cleared, letting callers skip the object-store delete.
func (r *ArchiveRepo) ClearDownloadURL(ctx context.Context, archiveID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE archives
		SET download_url = NULL,
		    download_expiration_timestamp = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND download_url IS NOT NULL
	`, archiveID)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

type archiveRowData struct {
	downloadURL, screenshotName sql.NullString
	expiry                      sql.NullTime
	summary, datapackage        []byte
}

func scanArchiveFromRow(scanner rowScanner) (*model.Archive, error) {
	archive := &model.Archive{}
	var data archiveRowData
	err := scanner.Scan(
		&archive.ID,
		&archive.CaptureJobID,
		&archive.Hash,
		&archive.HashAlgorithm,
		&archive.Size,
		&data.downloadURL,
		&data.expiry,
		&archive.CaptureSoftware,
		&archive.PartialCapture,
		&data.summary,
		&data.datapackage,
		&archive.DatapackageDigest,
		&data.screenshotName,
		&archive.CreatedAt,
		&archive.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	archive.DownloadURL = cloneNullableString(data.downloadURL)
	archive.ScreenshotName = cloneNullableString(data.screenshotName)
	archive.DownloadExpirationTimestamp = cloneNullableTime(data.expiry)
	if len(data.summary) > 0 && string(data.summary) != "null" {
		archive.Summary = append(json.RawMessage(nil), data.summary...)
	}
	if len(data.datapackage) > 0 && string(data.datapackage) != "null" {
		archive.Datapackage = append(json.RawMessage(nil), data.datapackage...)
	}
	return archive, nil
}
