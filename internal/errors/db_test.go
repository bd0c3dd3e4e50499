package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, MapDBError(nil))
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		err := MapDBError(fmt.Errorf("get job: %w", pgx.ErrNoRows))
		assert.True(t, IsNotFound(err))
	})

	t.Run("context deadline maps to timeout", func(t *testing.T) {
		err := MapDBError(context.DeadlineExceeded)
		assert.True(t, IsCode(err, ErrCodeTimeout))
	})

	t.Run("context canceled maps to canceled", func(t *testing.T) {
		err := MapDBError(context.Canceled)
		assert.True(t, IsCode(err, ErrCodeCanceled))
	})

	t.Run("unique violation maps to conflict with field", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:   pgerrcode.UniqueViolation,
			Detail: "Key (capture_job_id)=(abc) already exists.",
		}
		err := MapDBError(pgErr)
		require.True(t, IsConflict(err))

		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "capture_job_id", appErr.Field)
	})

	t.Run("foreign key violation names the missing table", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:   pgerrcode.ForeignKeyViolation,
			Detail: `Key (capture_job_id)=(abc) is not present in table "capture_jobs".`,
		}
		err := MapDBError(pgErr)
		require.True(t, IsCode(err, ErrCodeForeignKey))
		assert.Contains(t, err.Error(), "capture job")
	})

	t.Run("not null violation maps to validation", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:       pgerrcode.NotNullViolation,
			ColumnName: "requested_url",
		}
		err := MapDBError(pgErr)
		require.True(t, IsValidation(err))
	})

	t.Run("unknown error passes through", func(t *testing.T) {
		sentinel := fmt.Errorf("boom")
		assert.Equal(t, sentinel, MapDBError(sentinel))
	})
}
