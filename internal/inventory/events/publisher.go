package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/pkg/logger"
	"github.com/medflow/labstock/pkg/messaging"
	"github.com/medflow/labstock/pkg/tenant"
)

// Publisher is satisfied by *messaging.Publisher.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// InventoryEventPublisher publishes inventory-related events. A nil
// publisher is valid and publishes nothing, which is how events are
// disabled. Failures are logged, never returned: the ledger change has
// already been committed.
type InventoryEventPublisher struct {
	publisher Publisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher declares the inventory exchange on rmq.
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}
	return New(publisher, log), nil
}

// New wraps an existing publisher.
func New(publisher Publisher, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log.WithComponent("events"),
	}
}

// PublishBatchReceived publishes a batch received event
func (p *InventoryEventPublisher) PublishBatchReceived(ctx context.Context, batch *domain.Batch) {
	if p == nil {
		return
	}

	data := messaging.BatchReceivedEvent{
		TenantID:   batch.TenantID,
		ItemID:     batch.ItemID,
		BatchID:    batch.ID,
		Quantity:   batch.Quantity,
		ExpiryDate: batch.ExpiryDate,
	}
	if batch.BatchNo != nil {
		data.BatchNo = *batch.BatchNo
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch received event")
	}
}

// PublishStockConsumed publishes a stock consumed event
func (p *InventoryEventPublisher) PublishStockConsumed(ctx context.Context, report *domain.FulfillmentReport, performedBy, reference *string) {
	if p == nil {
		return
	}

	tenantID, _ := tenant.TenantID(ctx)
	data := messaging.StockConsumedEvent{
		TenantID:  tenantID,
		ItemID:    report.ItemID,
		Requested: report.Requested,
		Used:      report.Used,
		Partial:   report.Partial,
		Lines:     make([]messaging.ConsumedLine, 0, len(report.Details)),
	}
	for _, line := range report.Details {
		data.Lines = append(data.Lines, messaging.ConsumedLine{BatchID: line.BatchID, Quantity: line.QuantityTaken})
	}
	if performedBy != nil {
		data.PerformedBy = *performedBy
	}
	if reference != nil {
		data.Reference = *reference
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockConsumed, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", report.ItemID).Msg("failed to publish stock consumed event")
	}
}

// PublishAlertGenerated publishes an alert generated event
func (p *InventoryEventPublisher) PublishAlertGenerated(ctx context.Context, alert *domain.Alert) {
	if p == nil {
		return
	}

	tenantID, _ := tenant.TenantID(ctx)
	data := messaging.AlertGeneratedEvent{
		AlertID:   uuid.New().String(),
		TenantID:  tenantID,
		AlertType: alert.Type,
		Severity:  alert.Severity,
		Message:   alert.Message,
		ItemID:    alert.ItemID,
		BatchID:   alert.BatchID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertGenerated, data); err != nil {
		p.logger.Error().Err(err).Str("alert_type", alert.Type).Msg("failed to publish alert generated event")
	}
}
