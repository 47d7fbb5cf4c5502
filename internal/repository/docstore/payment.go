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

var errDuplicateOrder = errors.New("duplicate provider order id")

type PaymentStore struct {
	rdb  *redis.Client
	keys keyspace
}

func (s *PaymentStore) Create(ctx context.Context, payment *model.PaymentRecord) error {
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	data, err := json.Marshal(payment)
	if err != nil {
		return err
	}

	ok, err := s.rdb.SetNX(ctx, s.keys.payment(payment.ProviderOrderID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errDuplicateOrder
	}
	return nil
}

func (s *PaymentStore) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*model.PaymentRecord, error) {
	var payment model.PaymentRecord
	if err := getJSON(ctx, s.rdb, s.keys.payment(providerOrderID), &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *PaymentStore) MarkCompleted(ctx context.Context, providerOrderID string, at time.Time) error {
	key := s.keys.payment(providerOrderID)
	return watchRetry(ctx, s.rdb, func(tx *redis.Tx) error {
		var payment model.PaymentRecord
		if err := getJSON(ctx, tx, key, &payment); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		if payment.Status != model.PaymentPending {
			return nil
		}

		payment.Status = model.PaymentCompleted
		payment.CompletedAt = &at
		payment.UpdatedAt = at

		data, err := json.Marshal(&payment)
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
