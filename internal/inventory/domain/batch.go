package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/medflow/labstock/pkg/errors"
	"github.com/shopspring/decimal"
)

// Batch is a lot of stock received together. Quantity is fixed at receipt;
// RemainingQuantity is only ever decremented by consumption and stays in
// [0, Quantity]. Exhausted batches are kept for the audit trail.
type Batch struct {
	ID                string           `db:"id" json:"id"`
	TenantID          string           `db:"tenant_id" json:"tenant_id"`
	ItemID            string           `db:"item_id" json:"item_id"`
	BatchNo           *string          `db:"batch_no" json:"batch_no,omitempty"`
	LotNo             *string          `db:"lot_no" json:"lot_no,omitempty"`
	Quantity          decimal.Decimal  `db:"quantity" json:"quantity"`
	RemainingQuantity decimal.Decimal  `db:"remaining_quantity" json:"remaining_quantity"`
	ExpiryDate        *time.Time       `db:"expiry_date" json:"expiry_date"`
	ReceivedDate      time.Time        `db:"received_date" json:"received_date"`
	SupplierName      *string          `db:"supplier_name" json:"supplier_name,omitempty"`
	UnitCost          *decimal.Decimal `db:"unit_cost" json:"unit_cost,omitempty"`
	Notes             *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// Exhausted reports whether nothing is left in the batch.
func (b *Batch) Exhausted() bool {
	return !b.RemainingQuantity.IsPositive()
}

// ExpiredAt reports whether the batch expiry day lies before now's day.
func (b *Batch) ExpiredAt(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(NewDate(now).Time)
}

// Label is the human facing identifier of the batch.
func (b *Batch) Label() string {
	if b.BatchNo != nil && *b.BatchNo != "" {
		return *b.BatchNo
	}
	return b.ID
}

// ExpiringBatch is a batch listed by the expiring-soon query.
type ExpiringBatch struct {
	Batch
	ItemName string `db:"item_name" json:"item_name"`
}

// BatchInput carries the fields of a newly received batch.
type BatchInput struct {
	BatchNo      *string          `json:"batch_no,omitempty" validate:"omitempty,max=100"`
	LotNo        *string          `json:"lot_no,omitempty" validate:"omitempty,max=100"`
	Quantity     decimal.Decimal  `json:"quantity"`
	ExpiryDate   *Date            `json:"expiry_date,omitempty"`
	ReceivedDate *time.Time       `json:"received_date,omitempty"`
	SupplierName *string          `json:"supplier_name,omitempty" validate:"omitempty,max=255"`
	UnitCost     *decimal.Decimal `json:"unit_cost,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
}

// Validate checks quantity and cost.
func (in *BatchInput) Validate() error {
	details := map[string]string{}
	if !in.Quantity.IsPositive() {
		details["quantity"] = "must be greater than 0"
	}
	checkStorable(details, "quantity", in.Quantity)
	if in.UnitCost != nil {
		if in.UnitCost.IsNegative() {
			details["unit_cost"] = "must not be negative"
		}
		checkStorable(details, "unit_cost", *in.UnitCost)
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// NewBatch builds a full batch for item from validated input.
func NewBatch(item *Item, in BatchInput, now time.Time) *Batch {
	received := now
	if in.ReceivedDate != nil {
		received = *in.ReceivedDate
	}
	return &Batch{
		TenantID:          item.TenantID,
		ItemID:            item.ID,
		BatchNo:           trimmed(in.BatchNo),
		LotNo:             trimmed(in.LotNo),
		Quantity:          in.Quantity,
		RemainingQuantity: in.Quantity,
		ExpiryDate:        in.ExpiryDate.Ptr(),
		ReceivedDate:      received.UTC(),
		SupplierName:      in.SupplierName,
		UnitCost:          in.UnitCost,
		Notes:             in.Notes,
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// CompareBatches is the canonical allocation order: earliest expiry first,
// batches without expiry last, then oldest receipt, then id.
func CompareBatches(a, b *Batch) int {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return 1
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return -1
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		if c := a.ExpiryDate.Compare(*b.ExpiryDate); c != 0 {
			return c
		}
	}
	if c := a.ReceivedDate.Compare(b.ReceivedDate); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortBatches orders batches in place by CompareBatches.
func SortBatches(batches []*Batch) {
	slices.SortFunc(batches, CompareBatches)
}
