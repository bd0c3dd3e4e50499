package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/capturelab/scoopd/internal/data/pgxutil"
	apperrors "github.com/capturelab/scoopd/internal/errors"
	"github.com/capturelab/scoopd/internal/domain/model"
)

// maxClaimAttempts bounds the read-then-update claim loop. Losing the race
// this many times in a row means the queue is saturated with workers and the
// caller should back off at its own cadence.
const maxClaimAttempts = 10

// queueEntry is one pending job's position, used for fair order computation.
type queueEntry struct {
	UserID string
	Order  float64
}

// Create inserts a new pending job with a fair queue position.
//
// The order is computed and assigned inside one transaction that locks the
// priority class's pending rows, so two concurrent creations cannot compute
// positions from the same snapshot.
func (r *CaptureJobRepo) Create(ctx context.Context, req *model.CreateCaptureJobRequest) (*model.CaptureJob, error) {
	if req == nil {
		return nil, errors.New("create capture job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	options, err := json.Marshal(req.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal capture options: %w", err)
	}

	var job *model.CaptureJob
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, queryErr := tx.Query(ctx, `
				SELECT user_id, queue_order
				FROM capture_jobs
				WHERE status = 'pending' AND human = $1
				ORDER BY queue_order ASC
				FOR UPDATE
			`, req.Human)
			if queryErr != nil {
				return fmt.Errorf("lock pending queue: %w", queryErr)
			}
			entries, collectErr := pgx.CollectRows(rows, pgx.RowToStructByPos[queueEntry])
			if collectErr != nil {
				return fmt.Errorf("collect pending queue: %w", collectErr)
			}

			order := computeQueueOrder(entries, req.UserID)

			insertRows, insertErr := tx.Query(ctx, `
				INSERT INTO capture_jobs (
					id, user_id, requested_url, human, label, webhook_data,
					status, queue_order, capture_options
				)
				VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8)
				RETURNING `+captureJobColumns, uuid.NewString(), req.UserID, req.RequestedURL,
				req.Human, req.Label, req.WebhookData, order, options)
			if insertErr != nil {
				return fmt.Errorf("insert capture job: %w", insertErr)
			}
			defer insertRows.Close()

			if !insertRows.Next() {
				if rowsErr := insertRows.Err(); rowsErr != nil {
					return rowsErr
				}
				return pgx.ErrNoRows
			}
			created, scanErr := scanCaptureJobFromRow(insertRows)
			if scanErr != nil {
				return fmt.Errorf("collect capture job: %w", scanErr)
			}
			job = created
			return nil
		},
	})
	if txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}

	job.ResetOriginalState()
	return job, nil
}

// computeQueueOrder finds the fair position for a new job in its priority
// class. The entries must be the class's pending jobs in ascending order.
//
// Only the tail of the queue past the submitting user's most recent pending
// job is considered. Walking that tail in dispatch order, the first user to
// appear twice marks the cut: the new job slots between that user's first
// and second entry, so no waiting user is lapped. Without such a repeat the
// job appends after the queue's last entry.
func computeQueueOrder(entries []queueEntry, userID string) float64 {
	if len(entries) == 0 {
		return 1
	}

	tail := entries
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].UserID == userID {
			tail = entries[i+1:]
			break
		}
	}

	firstSeen := make(map[string]float64, len(tail))
	for _, e := range tail {
		if first, ok := firstSeen[e.UserID]; ok {
			return (first + e.Order) / 2
		}
		firstSeen[e.UserID] = e.Order
	}

	return entries[len(entries)-1].Order + 1
}

// GetNextJob atomically claims the highest-priority pending job.
//
// The claim is a read followed by a conditional update on the read status.
// Zero rows affected means another worker claimed the same job first; the
// loop re-reads and tries again with a short jitter, bounded by
// maxClaimAttempts. An empty queue returns model.ErrNoJobsPending.
func (r *CaptureJobRepo) GetNextJob(ctx context.Context) (*model.CaptureJob, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		var candidateID string
		err := r.DB.QueryRowContext(ctx, `
			SELECT id FROM capture_jobs
			WHERE status = 'pending'
			ORDER BY human DESC, queue_order ASC, created_at ASC
			LIMIT 1
		`).Scan(&candidateID)
		if err != nil {
			if isNoRows(err) {
				return nil, model.ErrNoJobsPending
			}
			return nil, apperrors.MapDBError(err)
		}

		row := r.DB.QueryRowContext(ctx, `
			UPDATE capture_jobs
			SET status = 'in_progress',
			    capture_start_time = now(),
			    updated_at = now()
			WHERE id = $1 AND status = 'pending'
			RETURNING `+captureJobColumns, candidateID)

		job, scanErr := scanCaptureJobFromRow(row)
		if scanErr == nil {
			job.ResetOriginalState()
			return job, nil
		}
		if !isNoRows(scanErr) {
			return nil, apperrors.MapDBError(scanErr)
		}

		// Lost the race. Back off briefly before re-reading.
		r.logger.Debug("claim race lost, retrying", "job_id", candidateID, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(rand.Intn(50)+10) * time.Millisecond):
		}
	}

	return nil, ErrClaimContention
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
