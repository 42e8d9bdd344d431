package domain

import (
	"time"

	"github.com/medflow/labstock/pkg/errors"
	"github.com/shopspring/decimal"
)

// ConsumeRequest asks for quantity of an item. BatchID optionally names a
// batch to draw from first.
type ConsumeRequest struct {
	ItemID    string          `json:"item_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	BatchID   *string         `json:"batch_id,omitempty"`
	Reference *string         `json:"reference,omitempty" validate:"omitempty,max=255"`
}

// Validate rejects non-positive quantities before anything is read.
func (r *ConsumeRequest) Validate() error {
	details := map[string]string{}
	if r.ItemID == "" {
		details["item_id"] = "this field is required"
	}
	if !r.Quantity.IsPositive() {
		details["quantity"] = "must be greater than 0"
	}
	checkStorable(details, "quantity", r.Quantity)
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// FulfillmentLine records how much was taken from one batch.
type FulfillmentLine struct {
	BatchID       string          `json:"batch_id"`
	BatchNo       string          `json:"batch_no,omitempty"`
	QuantityTaken decimal.Decimal `json:"quantity_taken"`
}

// FulfillmentReport is the outcome of a consumption. A shortfall is not an
// error: Partial is set and Used holds what was actually available.
type FulfillmentReport struct {
	ItemID    string            `json:"item_id"`
	Requested decimal.Decimal   `json:"requested"`
	Used      decimal.Decimal   `json:"used"`
	Partial   bool              `json:"partial"`
	Details   []FulfillmentLine `json:"details"`
}

// NewReport summarizes lines against the requested quantity.
func NewReport(itemID string, requested decimal.Decimal, lines []FulfillmentLine) *FulfillmentReport {
	used := decimal.Zero
	for _, l := range lines {
		used = used.Add(l.QuantityTaken)
	}
	if lines == nil {
		lines = []FulfillmentLine{}
	}
	return &FulfillmentReport{
		ItemID:    itemID,
		Requested: requested,
		Used:      used,
		Partial:   used.LessThan(requested),
		Details:   lines,
	}
}

// Plan decides which batches to draw quantity from. batches must already be
// in canonical order; exhausted ones are skipped. When preferredID names a
// batch with stock it goes first and the rest keep their order. Zero lines
// are never emitted.
func Plan(batches []*Batch, quantity decimal.Decimal, preferredID string) []FulfillmentLine {
	candidates := make([]*Batch, 0, len(batches))
	for _, b := range batches {
		if b.Exhausted() {
			continue
		}
		if b.ID == preferredID {
			candidates = append([]*Batch{b}, candidates...)
			continue
		}
		candidates = append(candidates, b)
	}

	var lines []FulfillmentLine
	outstanding := quantity
	for _, b := range candidates {
		if !outstanding.IsPositive() {
			break
		}
		take := decimal.Min(b.RemainingQuantity, outstanding)
		lines = append(lines, FulfillmentLine{
			BatchID:       b.ID,
			BatchNo:       deref(b.BatchNo),
			QuantityTaken: take,
		})
		outstanding = outstanding.Sub(take)
	}
	return lines
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Allocation is a planned consumption ready to be applied atomically.
type Allocation struct {
	ItemID      string
	Lines       []FulfillmentLine
	PerformedBy *string
	Reference   *string
	At          time.Time
}

// Consumption is the audit row written for each fulfillment line.
type Consumption struct {
	ID          string          `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	ItemID      string          `db:"item_id" json:"item_id"`
	BatchID     string          `db:"batch_id" json:"batch_id"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	ConsumedAt  time.Time       `db:"consumed_at" json:"consumed_at"`
	PerformedBy *string         `db:"performed_by" json:"performed_by,omitempty"`
	Reference   *string         `db:"reference" json:"reference,omitempty"`
}
