package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/quota_ledger/internal/testutil"
)

func TestChangeMessages(t *testing.T) {
	for _, change := range []string{"seed", "renew", "upgrade", "downgrade", "addon", "applied", "demoted"} {
		msg, ok := ChangeMessages[change]
		assert.True(t, ok, "change %s should have message", change)
		assert.NotEmpty(t, msg)
	}
}

func TestChangeMessage_OmitEmpty(t *testing.T) {
	msg := &ChangeMessage{AccountID: 1, Change: "demoted", Plan: "Free"}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Contains(t, raw, "account_id")
	_, hasExpiry := raw["contract_expires_at"]
	_, hasOrder := raw["order_id"]
	assert.False(t, hasExpiry, "nil expiry should be omitted")
	assert.False(t, hasOrder, "empty order id should be omitted")
}

func TestPublisherSubscriber(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)

	publisher := NewPublisher(client)
	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *ChangeMessage, 1)
	done := make(chan error, 1)
	go func() {
		done <- subscriber.Subscribe(ctx, func(msg *ChangeMessage) {
			select {
			case received <- msg:
			default:
			}
		})
	}()

	expires := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	msg := &ChangeMessage{
		AccountID:         42,
		Change:            "upgrade",
		Plan:              "Pro",
		Pro:               true,
		ContractExpiresAt: &expires,
		OrderID:           "order-1",
	}

	// 订阅建立前发布的消息会丢失，轮询直到收到
	var got *ChangeMessage
	require.Eventually(t, func() bool {
		if err := publisher.PublishChange(ctx, msg); err != nil {
			return false
		}
		select {
		case got = <-received:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, "ledger_change", got.Type)
	assert.Equal(t, int64(42), got.AccountID)
	assert.Equal(t, "Pro", got.Plan)
	assert.True(t, got.Pro)
	assert.Equal(t, ChangeMessages["upgrade"], got.Message)
	require.NotNil(t, got.ContractExpiresAt)
	assert.True(t, expires.Equal(*got.ContractExpiresAt))
	assert.False(t, got.OccurredAt.IsZero())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}
