// Package docstore 基于 redis 的文档存储后端，每条记录保存为一个 JSON 文档，
// 单文档读-改-写通过 WATCH/MULTI 实现乐观并发。
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/quota_ledger/internal/repository"
)

// maxCASRetries 乐观并发冲突时的最大重试次数
const maxCASRetries = 8

type keyspace struct {
	prefix string
}

func (k keyspace) account(id int64) string {
	return fmt.Sprintf("%s:account:%d", k.prefix, id)
}

func (k keyspace) dueIndex() string {
	return k.prefix + ":accounts:due"
}

func (k keyspace) payment(providerOrderID string) string {
	return k.prefix + ":payment:" + providerOrderID
}

func (k keyspace) event(id string) string {
	return k.prefix + ":webhook:" + id
}

func (k keyspace) subscriptions(accountID int64) string {
	return fmt.Sprintf("%s:subscriptions:%d", k.prefix, accountID)
}

// getJSON 读取并解析文档，文档不存在返回 repository.ErrNotFound
func getJSON(ctx context.Context, c redis.Cmdable, key string, v interface{}) error {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return repository.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// watchRetry 执行 WATCH 事务，冲突时重试
func watchRetry(ctx context.Context, rdb *redis.Client, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxCASRetries; i++ {
		err := rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return repository.ErrConflict
}

// NewStores 文档型后端
func NewStores(rdb *redis.Client, prefix string) *repository.Stores {
	ks := keyspace{prefix: prefix}
	return &repository.Stores{
		Accounts:      &AccountStore{rdb: rdb, keys: ks},
		Payments:      &PaymentStore{rdb: rdb, keys: ks},
		Events:        &WebhookEventStore{rdb: rdb, keys: ks},
		Subscriptions: &SubscriptionStore{rdb: rdb, keys: ks},
	}
}
