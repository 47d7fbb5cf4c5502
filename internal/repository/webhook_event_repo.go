package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/quota_ledger/internal/model"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Get(ctx context.Context, id string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, event *model.WebhookEvent, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.WebhookEvent
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", event.ID).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err == nil {
			if existing.Processed {
				*event = existing
				return nil
			}
			event.CreatedAt = existing.CreatedAt
		}

		event.Processed = true
		event.ProcessedAt = &at
		return tx.Save(event).Error
	})
}
