package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/repository"
)

type WebhookEventStore struct {
	rdb  *redis.Client
	keys keyspace
}

func (s *WebhookEventStore) Get(ctx context.Context, id string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	if err := getJSON(ctx, s.rdb, s.keys.event(id), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *WebhookEventStore) MarkProcessed(ctx context.Context, event *model.WebhookEvent, at time.Time) error {
	key := s.keys.event(event.ID)
	return watchRetry(ctx, s.rdb, func(tx *redis.Tx) error {
		var existing model.WebhookEvent
		err := getJSON(ctx, tx, key, &existing)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err == nil {
			if existing.Processed {
				*event = existing
				return nil
			}
			event.CreatedAt = existing.CreatedAt
		}
		if event.CreatedAt.IsZero() {
			event.CreatedAt = at
		}
		event.Processed = true
		event.ProcessedAt = &at
		event.UpdatedAt = at

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}
