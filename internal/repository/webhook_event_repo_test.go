package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/testutil"
)

func TestWebhookEventRepository_MarkProcessed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewWebhookEventRepository(db)
	ctx := context.Background()
	id := model.EventID(model.ProviderAlipay, "2025030122001")

	_, err := repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkProcessed(ctx, &model.WebhookEvent{
		ID:              id,
		Provider:        model.ProviderAlipay,
		ProviderOrderID: "order-1",
	}, first))

	found, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, found.Processed)
	assert.True(t, found.ProcessedAt.Equal(first))

	// 第二次标记不改变处理时间
	require.NoError(t, repo.MarkProcessed(ctx, &model.WebhookEvent{
		ID:       id,
		Provider: model.ProviderAlipay,
	}, first.Add(time.Hour)))

	found, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, found.ProcessedAt.Equal(first))
	assert.Equal(t, "order-1", found.ProviderOrderID)
}
