package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/quota_ledger/internal/model"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Get(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) Put(ctx context.Context, account *model.Account) error {
	account.RefreshDueAt()
	account.Version++
	return r.db.WithContext(ctx).Save(account).Error
}

// Update 行锁内完成读-改-写，sqlite 下退化为库级写锁
func (r *AccountRepository) Update(ctx context.Context, id int64, fn UpdateFunc) (*model.Account, error) {
	var result *model.Account

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account model.Account
		isNew := false

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			account = model.Account{ID: id}
			isNew = true
		} else if err != nil {
			return err
		}

		result = &account
		if err := fn(&account); err != nil {
			return err
		}

		account.RefreshDueAt()
		account.Version++

		if isNew {
			return tx.Create(&account).Error
		}
		return tx.Save(&account).Error
	})
	if err != nil {
		if errors.Is(err, ErrNoChange) {
			return result, ErrNoChange
		}
		return nil, err
	}

	return result, nil
}

func (r *AccountRepository) ListDue(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("next_due_at IS NOT NULL AND next_due_at <= ?", now.UTC()).
		Order("next_due_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}
