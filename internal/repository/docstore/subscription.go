package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samber/lo"

	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/repository"
)

// SubscriptionStore 每个账户的订阅历史保存为一个文档
type SubscriptionStore struct {
	rdb  *redis.Client
	keys keyspace
}

type subscriptionDoc struct {
	NextID  int64                      `json:"next_id"`
	Records []model.SubscriptionRecord `json:"records"`
}

// modify 对账户订阅文档做读-改-写
func (s *SubscriptionStore) modify(ctx context.Context, accountID int64, fn func(doc *subscriptionDoc) error) error {
	key := s.keys.subscriptions(accountID)
	err := watchRetry(ctx, s.rdb, func(tx *redis.Tx) error {
		var doc subscriptionDoc
		if err := getJSON(ctx, tx, key, &doc); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if err := fn(&doc); err != nil {
			return err
		}

		data, err := json.Marshal(&doc)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, repository.ErrNoChange) {
		return nil
	}
	return err
}

func (d *subscriptionDoc) append(rec model.SubscriptionRecord, status string, at time.Time) {
	d.NextID++
	rec.ID = d.NextID
	rec.Status = status
	rec.CreatedAt = at
	rec.UpdatedAt = at
	d.Records = append(d.Records, rec)
}

func (s *SubscriptionStore) SetActive(ctx context.Context, record *model.SubscriptionRecord) error {
	return s.modify(ctx, record.AccountID, func(doc *subscriptionDoc) error {
		_, exists := lo.Find(doc.Records, func(r model.SubscriptionRecord) bool {
			return r.ProviderOrderID == record.ProviderOrderID && r.Status == model.SubscriptionActive
		})
		if exists {
			return repository.ErrNoChange
		}

		now := time.Now()
		doc.Records = lo.Reject(doc.Records, func(r model.SubscriptionRecord, _ int) bool {
			return r.ProviderOrderID == record.ProviderOrderID && r.Status == model.SubscriptionPending
		})
		for i := range doc.Records {
			if doc.Records[i].Status == model.SubscriptionActive {
				doc.Records[i].Status = model.SubscriptionSuperseded
				doc.Records[i].UpdatedAt = now
			}
		}
		doc.append(*record, model.SubscriptionActive, now)
		*record = doc.Records[len(doc.Records)-1]
		return nil
	})
}

func (s *SubscriptionStore) ReplacePending(ctx context.Context, accountID int64, records []model.SubscriptionRecord) error {
	return s.modify(ctx, accountID, func(doc *subscriptionDoc) error {
		now := time.Now()
		doc.Records = lo.Reject(doc.Records, func(r model.SubscriptionRecord, _ int) bool {
			return r.Status == model.SubscriptionPending
		})
		for _, rec := range records {
			rec.AccountID = accountID
			doc.append(rec, model.SubscriptionPending, now)
		}
		return nil
	})
}

func (s *SubscriptionStore) ExpireActive(ctx context.Context, accountID int64, at time.Time) error {
	return s.modify(ctx, accountID, func(doc *subscriptionDoc) error {
		changed := false
		for i := range doc.Records {
			if doc.Records[i].Status == model.SubscriptionActive {
				doc.Records[i].Status = model.SubscriptionExpired
				doc.Records[i].UpdatedAt = at
				changed = true
			}
		}
		if !changed {
			return repository.ErrNoChange
		}
		return nil
	})
}

func (s *SubscriptionStore) ListByAccount(ctx context.Context, accountID int64) ([]model.SubscriptionRecord, error) {
	var doc subscriptionDoc
	if err := getJSON(ctx, s.rdb, s.keys.subscriptions(accountID), &doc); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Records, nil
}
