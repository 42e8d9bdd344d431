package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/internal/inventory/events"
	"github.com/medflow/labstock/internal/inventory/repository"
	"github.com/medflow/labstock/pkg/actor"
	"github.com/medflow/labstock/pkg/config"
	"github.com/medflow/labstock/pkg/errors"
	"github.com/medflow/labstock/pkg/keylock"
	"github.com/medflow/labstock/pkg/logger"
	"github.com/medflow/labstock/pkg/tenant"
	"github.com/shopspring/decimal"
)

// InventoryService handles inventory business logic
type InventoryService struct {
	items        repository.ItemStore
	batches      repository.BatchStore
	consumptions repository.ConsumptionStore
	publisher    *events.InventoryEventPublisher
	cfg          config.InventoryConfig
	locks        keylock.Locker
	now          func() time.Time
	logger       *logger.Logger
}

// NewInventoryService creates a new inventory service. publisher may be nil.
func NewInventoryService(
	items repository.ItemStore,
	batches repository.BatchStore,
	consumptions repository.ConsumptionStore,
	publisher *events.InventoryEventPublisher,
	cfg config.InventoryConfig,
	log *logger.Logger,
) *InventoryService {
	if cfg.AllocationRetries < 1 {
		cfg.AllocationRetries = 1
	}
	return &InventoryService{
		items:        items,
		batches:      batches,
		consumptions: consumptions,
		publisher:    publisher,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       log.WithComponent("inventory"),
	}
}

// Item operations

// CreateItem creates a new inventory item
func (s *InventoryService) CreateItem(ctx context.Context, in domain.ItemInput) (*domain.Item, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	item := domain.NewItem(tenantID, in)
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info().Str("item_id", item.ID).Str("name", item.Name).Msg("item created")
	return item, nil
}

// UpdateItem applies a partial update. Renaming or reactivating into an
// active duplicate name is a conflict.
func (s *InventoryService) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (*domain.Item, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(item)

	if err := s.items.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// DeactivateItem hides an item from allocation and alerting. Batches and
// consumption history are kept.
func (s *InventoryService) DeactivateItem(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateItem(ctx, id, domain.ItemPatch{Active: &inactive})
	return err
}

// GetItem gets an item with its current stock
func (s *InventoryService) GetItem(ctx context.Context, id string) (*domain.ItemWithStock, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	batches, err := s.batches.ListByItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	stock := domain.ComputeStock(item.ID, batches)
	return &domain.ItemWithStock{Item: *item, Stock: stock.Stock, NextExpiry: stock.NextExpiry}, nil
}

// ListItems lists items matching filter, ordered by name, each with its
// current stock.
func (s *InventoryService) ListItems(ctx context.Context, filter domain.ItemFilter) ([]*domain.ItemWithStock, error) {
	items, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	levels, err := s.batches.StockLevels(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.ItemWithStock, 0, len(items))
	for _, item := range items {
		entry := &domain.ItemWithStock{Item: *item, Stock: decimal.Zero}
		if level, ok := levels[item.ID]; ok {
			entry.Stock = level.Stock
			entry.NextExpiry = level.NextExpiry
		}
		result = append(result, entry)
	}
	return result, nil
}

// Batch operations

// AddBatch receives a new batch into the ledger of an active item
func (s *InventoryService) AddBatch(ctx context.Context, itemID string, in domain.BatchInput) (*domain.Batch, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	item, err := s.activeItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	batch := domain.NewBatch(item, in, s.now())
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("item_id", item.ID).
		Str("batch_id", batch.ID).
		Str("quantity", batch.Quantity.String()).
		Msg("batch received")

	s.publisher.PublishBatchReceived(ctx, batch)
	return batch, nil
}

// ListBatches returns every batch of an item, exhausted ones included, in
// allocation order.
func (s *InventoryService) ListBatches(ctx context.Context, itemID string) ([]*domain.Batch, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.batches.ListByItem(ctx, itemID)
}

// GetBatch gets a batch by ID
func (s *InventoryService) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return s.batches.GetByID(ctx, id)
}

// ListConsumptions returns the consumption history of an item, newest first.
func (s *InventoryService) ListConsumptions(ctx context.Context, itemID string) ([]*domain.Consumption, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.consumptions.ListByItem(ctx, itemID)
}

// Allocation

// Consume draws req.Quantity from the item's batches in FEFO/FIFO order and
// reports what was taken. A shortfall yields a partial report, not an error.
// Consumptions of the same item are serialized; a plan invalidated by a
// writer outside this process is recomputed a bounded number of times.
func (s *InventoryService) Consume(ctx context.Context, req domain.ConsumeRequest) (*domain.FulfillmentReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(tenantID + "/" + req.ItemID)
	defer unlock()

	item, err := s.activeItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.cfg.AllocationRetries; attempt++ {
		batches, err := s.batches.ListByItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}

		preferred := ""
		if req.BatchID != nil {
			if !slices.ContainsFunc(batches, func(b *domain.Batch) bool { return b.ID == *req.BatchID }) {
				return nil, errors.NotFound("batch", *req.BatchID)
			}
			preferred = *req.BatchID
		}

		lines := domain.Plan(batches, req.Quantity, preferred)
		report := domain.NewReport(item.ID, req.Quantity, lines)
		if len(lines) == 0 {
			return report, nil
		}

		alloc := &domain.Allocation{
			ItemID:      item.ID,
			Lines:       lines,
			PerformedBy: actor.IDFromContext(ctx),
			Reference:   req.Reference,
			At:          s.now(),
		}
		err = s.batches.ApplyAllocation(ctx, alloc)
		if errors.Is(err, repository.ErrStaleBatch) {
			s.logger.Warn().
				Str("item_id", item.ID).
				Int("attempt", attempt).
				Msg("allocation plan went stale, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info().
			Str("item_id", item.ID).
			Str("requested", report.Requested.String()).
			Str("used", report.Used.String()).
			Bool("partial", report.Partial).
			Msg("stock consumed")

		s.publisher.PublishStockConsumed(ctx, report, alloc.PerformedBy, alloc.Reference)
		return report, nil
	}

	return nil, errors.Conflict(fmt.Sprintf("stock of item %s changed concurrently, try again", item.ID))
}

// Stock

// StockOf aggregates the remaining quantity of an item.
func (s *InventoryService) StockOf(ctx context.Context, itemID string) (*domain.Stock, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}

	batches, err := s.batches.ListByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	stock := domain.ComputeStock(itemID, batches)
	return &stock, nil
}

// Alerting queries

// LowStock lists active items whose stock is at or below threshold, or their
// own min_stock when threshold is nil. Lowest stock first, ties by name.
func (s *InventoryService) LowStock(ctx context.Context, threshold *decimal.Decimal) ([]*domain.LowStockEntry, error) {
	if threshold != nil && threshold.IsNegative() {
		return nil, errors.Field("threshold", "must not be negative")
	}

	items, err := s.items.List(ctx, domain.ActiveItems())
	if err != nil {
		return nil, err
	}

	levels, err := s.batches.StockLevels(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*domain.LowStockEntry, 0)
	for _, item := range items {
		stock := decimal.Zero
		if level, ok := levels[item.ID]; ok {
			stock = level.Stock
		}
		if !domain.IsLow(item, stock, threshold) {
			continue
		}
		entries = append(entries, &domain.LowStockEntry{
			ItemID:   item.ID,
			Name:     item.Name,
			Kind:     item.Kind,
			Unit:     item.Unit,
			Stock:    stock,
			MinStock: item.MinStock,
		})
	}

	slices.SortStableFunc(entries, func(a, b *domain.LowStockEntry) int {
		if c := a.Stock.Cmp(b.Stock); c != 0 {
			return c
		}
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return entries, nil
}

// ExpiringSoon lists batches with stock left that expire within days from
// now, earliest first. A nil days uses the configured window.
func (s *InventoryService) ExpiringSoon(ctx context.Context, days *int) ([]*domain.ExpiringBatch, error) {
	window := s.cfg.ExpiryWindowDays
	if days != nil {
		window = *days
	}
	if window < 0 {
		return nil, errors.Field("days", "must not be negative")
	}
	if window > config.MaxExpiryWindowDays {
		return nil, errors.Field("days", fmt.Sprintf("must not exceed %d", config.MaxExpiryWindowDays))
	}

	cutoff := s.now().AddDate(0, 0, window)
	return s.batches.ListExpiring(ctx, cutoff)
}

// activeItem loads an item that may take part in the ledger. Inactive items
// are reported as not found.
func (s *InventoryService) activeItem(ctx context.Context, id string) (*domain.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, errors.NotFound("item", id)
	}
	return item, nil
}
