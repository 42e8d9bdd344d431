package messaging

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/medflow/labstock/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func TestPublisher_Publish(t *testing.T) {
	ch := &recordingChannel{}
	p := NewPublisherWithChannel(ch, ExchangeInventoryEvents, "inventory-service", logger.Nop())

	ctx := WithCorrelationID(context.Background(), "req-1")
	err := p.Publish(ctx, EventStockConsumed, StockConsumedEvent{
		ItemID:    "item-1",
		Requested: decimal.NewFromInt(5),
		Used:      decimal.NewFromInt(2),
		Partial:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, ExchangeInventoryEvents, ch.exchange)
	assert.Equal(t, EventStockConsumed, ch.key)
	assert.Equal(t, "req-1", ch.msg.CorrelationId)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var event Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &event))
	assert.Equal(t, EventStockConsumed, event.Type)
	assert.Equal(t, "inventory-service", event.Source)
	assert.Equal(t, ch.msg.MessageId, event.ID)

	var data StockConsumedEvent
	require.NoError(t, event.UnmarshalData(&data))
	assert.True(t, data.Used.Equal(decimal.NewFromInt(2)))
	assert.True(t, data.Partial)
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &recordingChannel{err: stderrors.New("channel closed")}
	p := NewPublisherWithChannel(ch, ExchangeInventoryEvents, "inventory-service", logger.Nop())

	err := p.Publish(context.Background(), EventAlertGenerated, AlertGeneratedEvent{AlertID: "a"})
	assert.ErrorContains(t, err, "channel closed")
}
