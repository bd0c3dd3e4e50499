package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/capturelab/scoopd/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 2000 is reserved for scoopd maintenance sweeps.
const (
	advisoryLockMaintenanceMajor   = 2000
	advisoryLockReaperFailStale    = 1 // minor key for FailStaleJobs
	advisoryLockJanitorListExpired = 2 // minor key for janitor sweeps
)

// FailStaleJobs fails in_progress jobs whose capture started more than
// hardTimeout ago. The cutoff is computed against the database clock, not
// the caller's, so skew between workers cannot reap a live job.
// Processes up to limit jobs per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the IDs of the jobs marked as failed.
func (r *CaptureJobRepo) FailStaleJobs(ctx context.Context, hardTimeout time.Duration, limit int) ([]string, error) {
	var failedIDs []string
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
				advisoryLockMaintenanceMajor, advisoryLockReaperFailStale).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			rows, err := tx.QueryContext(ctx, `
				UPDATE capture_jobs
				SET status = 'failed',
					message = '{"error": "capture timed out"}'::jsonb,
					capture_end_time = now(),
					updated_at = now()
				WHERE id IN (
					SELECT id FROM capture_jobs
					WHERE status = 'in_progress'
					  AND capture_start_time < now() - make_interval(secs => $1)
					ORDER BY capture_start_time
					LIMIT $2
				)
				RETURNING id
			`, hardTimeout.Seconds(), limit)
			if err != nil {
				return fmt.Errorf("fail stale jobs: %w", err)
			}
			defer rows.Close()

			for rows.Next() {
				var id string
				if scanErr := rows.Scan(&id); scanErr != nil {
					return fmt.Errorf("scan failed job id: %w", scanErr)
				}
				failedIDs = append(failedIDs, id)
			}
			return rows.Err()
		},
	})
	if err != nil {
		return nil, err
	}
	return failedIDs, nil
}
