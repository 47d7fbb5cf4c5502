package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelLedgerChanges = "ledger_changes"
)

// ChangeMessage 账户权益变更消息，供额度计量等下游刷新缓存
type ChangeMessage struct {
	Type              string     `json:"type"`
	AccountID         int64      `json:"account_id"`
	Change            string     `json:"change"`
	Plan              string     `json:"plan"`
	Pro               bool       `json:"pro"`
	ContractExpiresAt *time.Time `json:"contract_expires_at,omitempty"`
	OrderID           string     `json:"order_id,omitempty"`
	Message           string     `json:"message,omitempty"`
	OccurredAt        time.Time  `json:"occurred_at"`
}

// 变更类型对应的消息
var ChangeMessages = map[string]string{
	"seed":      "套餐已开通",
	"renew":     "套餐已续费",
	"upgrade":   "套餐已升级",
	"downgrade": "降级已排队，当前合同到期后生效",
	"addon":     "加油包额度已到账",
	"applied":   "排队的套餐已生效",
	"demoted":   "套餐已到期，已恢复为免费版",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishChange 发布账户变更
func (p *Publisher) PublishChange(ctx context.Context, msg *ChangeMessage) error {
	msg.Type = "ledger_change"

	if msg.Message == "" {
		msg.Message = ChangeMessages[msg.Change]
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal change message: %w", err)
	}

	return p.client.Publish(ctx, ChannelLedgerChanges, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅账户变更，ctx 取消后返回
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ChangeMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelLedgerChanges)
	defer pubsub.Close()

	// 等待订阅确认，避免丢失紧随其后的消息
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var change ChangeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				continue // 忽略解析错误
			}

			handler(&change)
		}
	}
}
