package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/repository"
)

type AccountStore struct {
	rdb  *redis.Client
	keys keyspace
}

func (s *AccountStore) Get(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	if err := getJSON(ctx, s.rdb, s.keys.account(id), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *AccountStore) Put(ctx context.Context, account *model.Account) error {
	key := s.keys.account(account.ID)
	return watchRetry(ctx, s.rdb, func(tx *redis.Tx) error {
		return s.write(ctx, tx, account)
	}, key)
}

func (s *AccountStore) Update(ctx context.Context, id int64, fn repository.UpdateFunc) (*model.Account, error) {
	key := s.keys.account(id)
	var result *model.Account

	err := watchRetry(ctx, s.rdb, func(tx *redis.Tx) error {
		var account model.Account
		err := getJSON(ctx, tx, key, &account)
		if errors.Is(err, repository.ErrNotFound) {
			account = model.Account{ID: id}
		} else if err != nil {
			return err
		}

		result = &account
		if err := fn(&account); err != nil {
			return err
		}
		return s.write(ctx, tx, &account)
	}, key)
	if err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return result, repository.ErrNoChange
		}
		return nil, err
	}

	return result, nil
}

// write 在 MULTI 中写入文档并维护到期索引
func (s *AccountStore) write(ctx context.Context, tx *redis.Tx, account *model.Account) error {
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.RefreshDueAt()
	account.Version++

	data, err := json.Marshal(account)
	if err != nil {
		return err
	}

	member := strconv.FormatInt(account.ID, 10)
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keys.account(account.ID), data, 0)
		if account.NextDueAt != nil {
			pipe.ZAdd(ctx, s.keys.dueIndex(), &redis.Z{
				Score:  float64(account.NextDueAt.Unix()),
				Member: member,
			})
		} else {
			pipe.ZRem(ctx, s.keys.dueIndex(), member)
		}
		return nil
	})
	return err
}

func (s *AccountStore) ListDue(ctx context.Context, now time.Time) ([]int64, error) {
	members, err := s.rdb.ZRangeByScore(ctx, s.keys.dueIndex(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
