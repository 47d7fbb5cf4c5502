package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/quota_ledger/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *model.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*model.PaymentRecord, error) {
	var payment model.PaymentRecord
	err := r.db.WithContext(ctx).Where("provider_order_id = ?", providerOrderID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// MarkCompleted 只更新仍为 PENDING 的记录
func (r *PaymentRepository) MarkCompleted(ctx context.Context, providerOrderID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.PaymentRecord{}).
		Where("provider_order_id = ? AND status = ?", providerOrderID, model.PaymentPending).
		Updates(map[string]interface{}{
			"status":       model.PaymentCompleted,
			"completed_at": at,
		}).Error
}
