package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturelab/scoopd/internal/domain/model"
	"github.com/capturelab/scoopd/internal/testutil"
)

func TestWebhookSubscriptionRepo_CreateGeneratesSigningKey(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewWebhookSubscriptionRepo(db, RepoConfig{})
		ctx := context.Background()

		sub, err := repo.Create(ctx, &model.CreateWebhookSubscriptionRequest{
			UserID:      "user-1",
			OwnerEmail:  "owner@example.com",
			CallbackURL: "https://example.com/hook",
			EventType:   model.EventArchiveCreated,
		})
		require.NoError(t, err)

		assert.Len(t, sub.SigningKey, 64) // 32 bytes hex encoded
		assert.Equal(t, model.SigningSHA256, sub.SigningKeyAlgorithm)

		other, err := repo.Create(ctx, &model.CreateWebhookSubscriptionRequest{
			UserID:      "user-1",
			OwnerEmail:  "owner@example.com",
			CallbackURL: "https://example.com/hook2",
			EventType:   model.EventArchiveCreated,
			Algorithm:   model.SigningSHA512,
		})
		require.NoError(t, err)
		assert.NotEqual(t, sub.SigningKey, other.SigningKey)
		assert.Equal(t, model.SigningSHA512, other.SigningKeyAlgorithm)
	})
}

func TestWebhookSubscriptionRepo_ListForUserEvent(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewWebhookSubscriptionRepo(db, RepoConfig{})
		ctx := context.Background()

		first, err := repo.Create(ctx, &model.CreateWebhookSubscriptionRequest{
			UserID:      "user-1",
			OwnerEmail:  "owner@example.com",
			CallbackURL: "https://example.com/a",
			EventType:   model.EventArchiveCreated,
		})
		require.NoError(t, err)

		second, err := repo.Create(ctx, &model.CreateWebhookSubscriptionRequest{
			UserID:      "user-1",
			OwnerEmail:  "owner@example.com",
			CallbackURL: "https://example.com/b",
			EventType:   model.EventArchiveCreated,
		})
		require.NoError(t, err)

		_, err = repo.Create(ctx, &model.CreateWebhookSubscriptionRequest{
			UserID:      "user-2",
			OwnerEmail:  "other@example.com",
			CallbackURL: "https://example.com/c",
			EventType:   model.EventArchiveCreated,
		})
		require.NoError(t, err)

		subs, err := repo.ListForUserEvent(ctx, "user-1", model.EventArchiveCreated)
		require.NoError(t, err)
		require.Len(t, subs, 2)
		assert.Equal(t, first.ID, subs[0].ID)
		assert.Equal(t, second.ID, subs[1].ID)
	})
}

func TestWebhookSubscriptionRepo_Delete(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewWebhookSubscriptionRepo(db, RepoConfig{})
		ctx := context.Background()

		sub, err := repo.Create(ctx, &model.CreateWebhookSubscriptionRequest{
			UserID:      "user-1",
			OwnerEmail:  "owner@example.com",
			CallbackURL: "https://example.com/hook",
			EventType:   model.EventArchiveCreated,
		})
		require.NoError(t, err)

		deleted, err := repo.Delete(ctx, sub.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, sub.ID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}
