package events

import (
	"context"
	"encoding/json"
	"testing"

	"FanatiquePay/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewOrderEvent(t *testing.T) {
	hash := "0xabc"
	order := &models.Order{
		ID:              9,
		UserID:          4,
		Status:          models.OrderPaid,
		TotalReal:       decimal.RequireFromString("20.00"),
		TotalFanToken:   decimal.RequireFromString("10.5"),
		TransactionHash: &hash,
	}

	ev := NewOrderEvent(OrderPaid, order)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "paid", ev.Status)
	assert.Equal(t, "0xabc", ev.TransactionHash)
	assert.Equal(t, "20", ev.TotalReal)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"order.paid"`)
	assert.Contains(t, string(raw), `"orderId":9`)
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	p := New([]string{" ", ""}, "orders", zap.NewNop())
	_, ok := p.(Nop)
	assert.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), OrderEvent{}))
	assert.NoError(t, p.Close())

	p = New([]string{"localhost:9092"}, "orders", zap.NewNop())
	_, ok = p.(*KafkaPublisher)
	assert.True(t, ok)
	assert.NoError(t, p.Close())
}
