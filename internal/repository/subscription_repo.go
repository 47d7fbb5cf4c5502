package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/quota_ledger/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) SetActive(ctx context.Context, record *model.SubscriptionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&model.SubscriptionRecord{}).
			Where("account_id = ? AND provider_order_id = ? AND status = ?",
				record.AccountID, record.ProviderOrderID, model.SubscriptionActive).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		err = tx.Model(&model.SubscriptionRecord{}).
			Where("account_id = ? AND status = ?", record.AccountID, model.SubscriptionActive).
			Update("status", model.SubscriptionSuperseded).Error
		if err != nil {
			return err
		}

		// 由排队降级转为生效时，去掉对应的 pending 记录
		err = tx.Where("account_id = ? AND provider_order_id = ? AND status = ?",
			record.AccountID, record.ProviderOrderID, model.SubscriptionPending).
			Delete(&model.SubscriptionRecord{}).Error
		if err != nil {
			return err
		}

		record.ID = 0
		record.Status = model.SubscriptionActive
		return tx.Create(record).Error
	})
}

func (r *SubscriptionRepository) ReplacePending(ctx context.Context, accountID int64, records []model.SubscriptionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("account_id = ? AND status = ?", accountID, model.SubscriptionPending).
			Delete(&model.SubscriptionRecord{}).Error
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		for i := range records {
			records[i].ID = 0
			records[i].AccountID = accountID
			records[i].Status = model.SubscriptionPending
		}
		return tx.Create(&records).Error
	})
}

func (r *SubscriptionRepository) ExpireActive(ctx context.Context, accountID int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.SubscriptionRecord{}).
		Where("account_id = ? AND status = ?", accountID, model.SubscriptionActive).
		Updates(map[string]interface{}{
			"status":     model.SubscriptionExpired,
			"updated_at": at,
		}).Error
}

func (r *SubscriptionRepository) ListByAccount(ctx context.Context, accountID int64) ([]model.SubscriptionRecord, error) {
	var records []model.SubscriptionRecord
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id ASC").Find(&records).Error
	return records, err
}

// NewStores 关系型后端
func NewStores(db *gorm.DB) *Stores {
	return &Stores{
		Accounts:      NewAccountRepository(db),
		Payments:      NewPaymentRepository(db),
		Events:        NewWebhookEventRepository(db),
		Subscriptions: NewSubscriptionRepository(db),
	}
}
