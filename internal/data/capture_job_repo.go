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

	apperrors "github.com/capturelab/scoopd/internal/errors"
	"github.com/capturelab/scoopd/internal/domain/model"
)

// RepoConfig holds configuration options shared by the data-layer repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// CaptureJobRepo provides database operations for capture job management.
type CaptureJobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewCaptureJobRepo creates a new CaptureJobRepo instance with the given database connection and configuration.
func NewCaptureJobRepo(db *sql.DB, cfg RepoConfig) *CaptureJobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CaptureJobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       logger,
	}
}

const captureJobColumns = `
  id,
  user_id,
  requested_url,
  validated_url,
  human,
  label,
  webhook_data,
  status,
  queue_order,
  message,
  step_count,
  step_description,
  capture_options,
  capture_start_time,
  capture_end_time,
  created_at,
  updated_at
`

// GetByID retrieves a capture job by its ID.
func (r *CaptureJobRepo) GetByID(ctx context.Context, id string) (*model.CaptureJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.Validation("job id is required")
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT `+captureJobColumns+`
		FROM capture_jobs
		WHERE id = $1
	`, id)

	job, err := scanCaptureJobFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("capture job %s not found", id)
		}
		return nil, apperrors.MapDBError(err)
	}

	job.ResetOriginalState()
	return job, nil
}

// Save persists tracked fields that changed since the job was loaded.
// Untouched columns are left alone so concurrent maintenance writes
// (the reaper's in particular) are not clobbered.
func (r *CaptureJobRepo) Save(ctx context.Context, job *model.CaptureJob) error {
	if job == nil {
		return errors.New("capture job is required")
	}

	assignments := make([]string, 0, 6)
	args := make([]any, 0, 7)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if job.StatusChanged() {
		assignments = append(assignments, "status = "+arg(job.Status))
		if job.Status.Terminal() {
			endTime := r.timeProvider.Now().UTC()
			job.CaptureEndTime = &endTime
			assignments = append(assignments, "capture_end_time = "+arg(endTime))
		}
	}
	if job.ValidatedURLChanged() {
		assignments = append(assignments, "validated_url = "+arg(job.ValidatedURL))
	}
	if job.ProgressChanged() {
		assignments = append(assignments, "step_count = "+arg(job.StepCount))
		assignments = append(assignments, "step_description = "+arg(job.StepDescription))
	}
	if job.MessageChanged() {
		msg := job.Message
		if len(msg) == 0 {
			msg = json.RawMessage(`null`)
		}
		assignments = append(assignments, "message = "+arg([]byte(msg)))
	}

	if len(assignments) == 0 {
		return nil
	}
	assignments = append(assignments, "updated_at = now()")

	query := "UPDATE capture_jobs SET " + strings.Join(assignments, ", ") +
		" WHERE id = " + arg(job.ID)

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundf("capture job %s not found", job.ID)
	}

	job.ResetOriginalState()
	return nil
}

// MarkCompleted writes the completed terminal status. Forward-only: a job
// already in a terminal state is left untouched.
func (r *CaptureJobRepo) MarkCompleted(ctx context.Context, job *model.CaptureJob) error {
	return r.markTerminal(ctx, job, model.StatusCompleted, nil)
}

// MarkFailed writes the failed terminal status with a human-readable message.
func (r *CaptureJobRepo) MarkFailed(ctx context.Context, job *model.CaptureJob, message string) error {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return fmt.Errorf("marshal failure message: %w", err)
	}
	return r.markTerminal(ctx, job, model.StatusFailed, payload)
}

// MarkInvalid writes the invalid terminal status with structured validation messages.
func (r *CaptureJobRepo) MarkInvalid(ctx context.Context, job *model.CaptureJob, messages []string) error {
	payload, err := json.Marshal(map[string][]string{"requested_url": messages})
	if err != nil {
		return fmt.Errorf("marshal validation messages: %w", err)
	}
	return r.markTerminal(ctx, job, model.StatusInvalid, payload)
}

func (r *CaptureJobRepo) markTerminal(ctx context.Context, job *model.CaptureJob, status model.Status, message json.RawMessage) error {
	if job == nil {
		return errors.New("capture job is required")
	}

	endTime := r.timeProvider.Now().UTC()
	msg := message
	if len(msg) == 0 {
		msg = json.RawMessage(`null`)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE capture_jobs
		SET status = $1,
		    message = $2,
		    capture_end_time = $3,
		    updated_at = $3
		WHERE id = $4
		  AND status NOT IN ('completed', 'failed', 'invalid')
	`, status, []byte(msg), endTime, job.ID)
	if err != nil {
		return apperrors.MapDBError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Already terminal, or gone. Either way the terminal write stands.
		r.logger.Debug("terminal status already written", "job_id", job.ID, "status", status)
		return nil
	}

	job.Status = status
	if len(message) > 0 {
		job.Message = message
	}
	job.CaptureEndTime = &endTime
	job.ResetOriginalState()
	return nil
}

// PendingCountForUser returns the user's pending job count.
func (r *CaptureJobRepo) PendingCountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM capture_jobs
		WHERE user_id = $1 AND status = 'pending'
	`, userID).Scan(&count)
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type captureJobRowData struct {
	validatedURL, webhookData sql.NullString
	message, options          []byte
	startTime, endTime        sql.NullTime
}

func (d *captureJobRowData) scanInto(scanner rowScanner, job *model.CaptureJob) error {
	return scanner.Scan(
		&job.ID,
		&job.UserID,
		&job.RequestedURL,
		&d.validatedURL,
		&job.Human,
		&job.Label,
		&d.webhookData,
		&job.Status,
		&job.Order,
		&d.message,
		&job.StepCount,
		&job.StepDescription,
		&d.options,
		&d.startTime,
		&d.endTime,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *captureJobRowData) apply(job *model.CaptureJob) error {
	job.ValidatedURL = cloneNullableString(d.validatedURL)
	job.WebhookData = cloneNullableString(d.webhookData)
	job.CaptureStartTime = cloneNullableTime(d.startTime)
	job.CaptureEndTime = cloneNullableTime(d.endTime)
	if len(d.message) > 0 && string(d.message) != "null" {
		job.Message = append(json.RawMessage(nil), d.message...)
	}
	if len(d.options) > 0 {
		if err := json.Unmarshal(d.options, &job.Options); err != nil {
			return fmt.Errorf("decode capture options: %w", err)
		}
	}
	return nil
}

func scanCaptureJobFromRow(scanner rowScanner) (*model.CaptureJob, error) {
	job := &model.CaptureJob{}
	var data captureJobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := data.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func cloneNullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func cloneNullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
