package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	p := &Publisher{channel: ch}
	event := domain.OrderEvent{
		Type:       domain.EventOrderApproved,
		OrderID:    "order-1",
		Numbers:    []string{"0001", "0002"},
		PaymentID:  "pay-1",
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, ch.sent, 1)

	sent := ch.sent[0]
	assert.Equal(t, ExchangeName, sent.exchange)
	assert.Equal(t, "order.approved", sent.key)
	assert.Equal(t, "application/json", sent.msg.ContentType)
	assert.Equal(t, amqp.Persistent, sent.msg.DeliveryMode)
	assert.Equal(t, "order-1:order.approved", sent.msg.MessageId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(sent.msg.Body, &body))
	assert.Equal(t, "order-1", body["order_id"])
	assert.Equal(t, "pay-1", body["payment_id"])
	assert.NotContains(t, body, "reason")
}

func TestPublisher_PublishError(t *testing.T) {
	t.Parallel()

	p := &Publisher{channel: &fakeChannel{err: errors.New("channel closed")}}
	err := p.Publish(context.Background(), domain.OrderEvent{Type: domain.EventOrderReleased, OrderID: "order-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order.released")
}
