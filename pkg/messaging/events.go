package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventBatchReceived  = "inventory.batch.received"
	EventStockConsumed  = "inventory.stock.consumed"
	EventAlertGenerated = "inventory.alert.generated"
)

// ExchangeInventoryEvents is the topic exchange all inventory events go to.
const ExchangeInventoryEvents = "inventory.events"

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// BatchReceivedEvent is published when stock arrives as a new batch.
type BatchReceivedEvent struct {
	TenantID   string          `json:"tenant_id"`
	ItemID     string          `json:"item_id"`
	BatchID    string          `json:"batch_id"`
	BatchNo    string          `json:"batch_no,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
}

// ConsumedLine is one batch drawn from by a consumption.
type ConsumedLine struct {
	BatchID  string          `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// StockConsumedEvent is published after a consumption commits.
type StockConsumedEvent struct {
	TenantID    string          `json:"tenant_id"`
	ItemID      string          `json:"item_id"`
	Requested   decimal.Decimal `json:"requested"`
	Used        decimal.Decimal `json:"used"`
	Partial     bool            `json:"partial"`
	Lines       []ConsumedLine  `json:"lines"`
	PerformedBy string          `json:"performed_by,omitempty"`
	Reference   string          `json:"reference,omitempty"`
}

// AlertGeneratedEvent is published when a scan finds an item or batch that
// needs attention.
type AlertGeneratedEvent struct {
	AlertID   string `json:"alert_id"`
	TenantID  string `json:"tenant_id"`
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	ItemID    string `json:"item_id,omitempty"`
	BatchID   string `json:"batch_id,omitempty"`
}
