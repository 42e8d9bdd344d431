package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is the aggregate view of an item's batches.
type Stock struct {
	ItemID     string          `json:"item_id"`
	Stock      decimal.Decimal `json:"stock"`
	NextExpiry *time.Time      `json:"next_expiry"`
}

// ComputeStock folds batches into a Stock: the sum of remaining quantities
// and the earliest expiry among batches that still hold something.
func ComputeStock(itemID string, batches []*Batch) Stock {
	s := Stock{ItemID: itemID, Stock: decimal.Zero}
	for _, b := range batches {
		s.Stock = s.Stock.Add(b.RemainingQuantity)
		if b.Exhausted() || b.ExpiryDate == nil {
			continue
		}
		if s.NextExpiry == nil || b.ExpiryDate.Before(*s.NextExpiry) {
			e := *b.ExpiryDate
			s.NextExpiry = &e
		}
	}
	return s
}

// IsLow reports whether stock is at or below threshold, or the item's own
// minimum when threshold is nil.
func IsLow(item *Item, stock decimal.Decimal, threshold *decimal.Decimal) bool {
	limit := item.MinStock
	if threshold != nil {
		limit = *threshold
	}
	return stock.LessThanOrEqual(limit)
}

// ExpiresBy reports whether b still holds stock and expires on or before cutoff.
func ExpiresBy(b *Batch, cutoff time.Time) bool {
	return !b.Exhausted() && b.ExpiryDate != nil && !b.ExpiryDate.After(cutoff)
}

// LowStockEntry is one row of the low-stock report.
type LowStockEntry struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	Kind     Kind            `json:"kind"`
	Unit     *string         `json:"unit,omitempty"`
	Stock    decimal.Decimal `json:"stock"`
	MinStock decimal.Decimal `json:"min_stock"`
}
