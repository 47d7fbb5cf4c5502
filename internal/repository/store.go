package repository

import (
	"context"
	"errors"
	"time"

	"github.com/qs3c/quota_ledger/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("concurrent update conflict")
	// ErrNoChange 由 Update 回调返回，表示无需写入
	ErrNoChange = errors.New("no change")
)

// UpdateFunc 在单个账户上的读-改-写回调。
// 账户不存在时传入 Plan 为空的新账户；回调可能因并发冲突被重复调用。
type UpdateFunc func(account *model.Account) error

// AccountStore 账户存储，Update 对单个账户是原子的
type AccountStore interface {
	Get(ctx context.Context, id int64) (*model.Account, error)
	Put(ctx context.Context, account *model.Account) error
	Update(ctx context.Context, id int64, fn UpdateFunc) (*model.Account, error)
	// ListDue 返回 NextDueAt 不晚于 now 的账户ID
	ListDue(ctx context.Context, now time.Time) ([]int64, error)
}

type PaymentStore interface {
	Create(ctx context.Context, payment *model.PaymentRecord) error
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*model.PaymentRecord, error)
	MarkCompleted(ctx context.Context, providerOrderID string, at time.Time) error
}

type WebhookEventStore interface {
	Get(ctx context.Context, id string) (*model.WebhookEvent, error)
	// MarkProcessed 标记事件已处理，已处理的事件保持不变
	MarkProcessed(ctx context.Context, event *model.WebhookEvent, at time.Time) error
}

// SubscriptionStore 订阅历史镜像，仅用于审计
type SubscriptionStore interface {
	// SetActive 写入新的生效合同，同账户之前的 active 记录置为 superseded
	SetActive(ctx context.Context, record *model.SubscriptionRecord) error
	// ReplacePending 用给定列表整体替换账户的 pending 记录
	ReplacePending(ctx context.Context, accountID int64, records []model.SubscriptionRecord) error
	ExpireActive(ctx context.Context, accountID int64, at time.Time) error
	ListByAccount(ctx context.Context, accountID int64) ([]model.SubscriptionRecord, error)
}

// Stores 一个存储后端提供的全部存储
type Stores struct {
	Accounts      AccountStore
	Payments      PaymentStore
	Events        WebhookEventStore
	Subscriptions SubscriptionStore
}
