// Package repository persists the inventory ledger in PostgreSQL. Every
// query is scoped to the tenant carried by the context; a missing tenant
// fails fast.
package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/labstock/internal/inventory/domain"
)

// ErrStaleBatch is returned by ApplyAllocation when a batch no longer holds
// the quantity the plan was built on. Nothing has been written.
var ErrStaleBatch = stderrors.New("batch remaining quantity changed concurrently")

// ItemStore is the item catalog.
type ItemStore interface {
	Create(ctx context.Context, item *domain.Item) error
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	Update(ctx context.Context, item *domain.Item) error
	List(ctx context.Context, filter domain.ItemFilter) ([]*domain.Item, error)
	// ListTenants returns every tenant owning at least one active item.
	ListTenants(ctx context.Context) ([]string, error)
}

// BatchStore is the batch ledger.
type BatchStore interface {
	Create(ctx context.Context, batch *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	// ListByItem returns all batches of the item, exhausted ones included,
	// in canonical allocation order.
	ListByItem(ctx context.Context, itemID string) ([]*domain.Batch, error)
	// StockLevels aggregates remaining quantities per item id. Items without
	// batches are absent from the map.
	StockLevels(ctx context.Context) (map[string]domain.Stock, error)
	// ListExpiring returns non-exhausted batches of active items whose expiry
	// day is on or before cutoff's day, earliest first.
	ListExpiring(ctx context.Context, cutoff time.Time) ([]*domain.ExpiringBatch, error)
	// ApplyAllocation decrements every line and records the consumptions in
	// one atomic step. Returns ErrStaleBatch without side effects when any
	// batch holds less than its line.
	ApplyAllocation(ctx context.Context, alloc *domain.Allocation) error
}

// ConsumptionStore reads the consumption audit trail.
type ConsumptionStore interface {
	ListByItem(ctx context.Context, itemID string) ([]*domain.Consumption, error)
}

// validID reports whether id can exist at all; malformed ids are treated as
// unknown instead of surfacing a driver error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
