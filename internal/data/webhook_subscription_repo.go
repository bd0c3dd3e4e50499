package data

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/capturelab/scoopd/internal/errors"
	"github.com/capturelab/scoopd/internal/domain/model"
)

// signingKeyBytes is the entropy of a generated subscription signing key.
const signingKeyBytes = 32

// WebhookSubscriptionRepo provides database operations for webhook subscriptions.
type WebhookSubscriptionRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewWebhookSubscriptionRepo creates a new WebhookSubscriptionRepo instance.
func NewWebhookSubscriptionRepo(db *sql.DB, cfg RepoConfig) *WebhookSubscriptionRepo {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSubscriptionRepo{DB: db, logger: logger}
}

const webhookSubscriptionColumns = `
  id,
  user_id,
  owner_email,
  callback_url,
  event_type,
  signing_key,
  signing_key_algorithm,
  created_at,
  updated_at
`

// Create inserts a subscription with a freshly generated signing key.
// The key is generated server side and never accepted from the caller.
func (r *WebhookSubscriptionRepo) Create(ctx context.Context, req *model.CreateWebhookSubscriptionRequest) (*model.WebhookSubscription, error) {
	if req == nil {
		return nil, errors.New("create webhook subscription request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = model.SigningSHA256
	}

	key, err := generateSigningKey()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO webhook_subscriptions (
			id, user_id, owner_email, callback_url, event_type,
			signing_key, signing_key_algorithm
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+webhookSubscriptionColumns,
		uuid.NewString(), req.UserID, req.OwnerEmail, req.CallbackURL,
		req.EventType, key, algorithm)

	sub, err := scanWebhookSubscriptionFromRow(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return sub, nil
}

// GetByID retrieves a webhook subscription by its ID.
func (r *WebhookSubscriptionRepo) GetByID(ctx context.Context, id string) (*model.WebhookSubscription, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.Validation("subscription id is required")
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT `+webhookSubscriptionColumns+`
		FROM webhook_subscriptions
		WHERE id = $1
	`, id)

	sub, err := scanWebhookSubscriptionFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("webhook subscription %s not found", id)
		}
		return nil, apperrors.MapDBError(err)
	}
	return sub, nil
}

// ListForUserEvent returns the user's subscriptions matching an event type,
// oldest first so delivery order is stable.
func (r *WebhookSubscriptionRepo) ListForUserEvent(ctx context.Context, userID string, event model.EventType) ([]*model.WebhookSubscription, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+webhookSubscriptionColumns+`
		FROM webhook_subscriptions
		WHERE user_id = $1 AND event_type = $2
		ORDER BY created_at
	`, userID, event)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var subs []*model.WebhookSubscription
	for rows.Next() {
		sub, scanErr := scanWebhookSubscriptionFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan webhook subscription: %w", scanErr)
		}
		subs = append(subs, sub)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return subs, nil
}

// Delete removes a subscription. Returns false when no row matched.
func (r *WebhookSubscriptionRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM webhook_subscriptions WHERE id = $1
	`, id)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func generateSigningKey() (string, error) {
	buf := make([]byte, signingKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func scanWebhookSubscriptionFromRow(scanner rowScanner) (*model.WebhookSubscription, error) {
	sub := &model.WebhookSubscription{}
	err := scanner.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.OwnerEmail,
		&sub.CallbackURL,
		&sub.EventType,
		&sub.SigningKey,
		&sub.SigningKeyAlgorithm,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
