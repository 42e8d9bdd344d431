// Package memory is an in-process implementation of the inventory stores.
// It backs unit tests and the memory storage driver. All state lives behind
// one mutex; callers always receive copies.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/internal/inventory/repository"
	"github.com/medflow/labstock/pkg/errors"
	"github.com/medflow/labstock/pkg/tenant"
	"github.com/shopspring/decimal"
)

// Store holds items, batches and consumptions of every tenant.
type Store struct {
	mu           sync.RWMutex
	items        map[string]*domain.Item
	batches      map[string]*domain.Batch
	consumptions []*domain.Consumption
	now          func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		items:   make(map[string]*domain.Item),
		batches: make(map[string]*domain.Batch),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Items returns the item catalog view of the store.
func (s *Store) Items() *ItemStore { return &ItemStore{s} }

// Batches returns the batch ledger view of the store.
func (s *Store) Batches() *BatchStore { return &BatchStore{s} }

// Consumptions returns the audit trail view of the store.
func (s *Store) Consumptions() *ConsumptionStore { return &ConsumptionStore{s} }

var (
	_ repository.ItemStore        = (*ItemStore)(nil)
	_ repository.BatchStore       = (*BatchStore)(nil)
	_ repository.ConsumptionStore = (*ConsumptionStore)(nil)
)

// ItemStore implements repository.ItemStore.
type ItemStore struct{ s *Store }

// Create inserts item, rejecting a duplicate active name in the tenant.
func (r *ItemStore) Create(ctx context.Context, item *domain.Item) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	item.TenantID = tenantID
	if item.Active && r.s.activeNameTaken(tenantID, item.Name, "") {
		return duplicateName()
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := r.s.now()
	item.CreatedAt, item.UpdatedAt = now, now

	stored := *item
	r.s.items[item.ID] = &stored
	return nil
}

// GetByID returns a copy of the item.
func (r *ItemStore) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	item, ok := r.s.items[id]
	if !ok || item.TenantID != tenantID {
		return nil, errors.NotFound("item", id)
	}
	out := *item
	return &out, nil
}

// Update replaces the stored item's mutable fields.
func (r *ItemStore) Update(ctx context.Context, item *domain.Item) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.items[item.ID]
	if !ok || existing.TenantID != tenantID {
		return errors.NotFound("item", item.ID)
	}
	if item.Active && r.s.activeNameTaken(tenantID, item.Name, item.ID) {
		return duplicateName()
	}

	updated := *existing
	updated.Name = item.Name
	updated.Kind = item.Kind
	updated.Unit = item.Unit
	updated.MinStock = item.MinStock
	updated.Active = item.Active
	updated.Description = item.Description
	updated.UpdatedAt = r.s.now()
	r.s.items[item.ID] = &updated

	*item = updated
	return nil
}

// List returns the tenant's items matching filter ordered by name.
func (r *ItemStore) List(ctx context.Context, filter domain.ItemFilter) ([]*domain.Item, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := []*domain.Item{}
	for _, item := range r.s.items {
		if item.TenantID != tenantID || !filter.Matches(item) {
			continue
		}
		out := *item
		items = append(items, &out)
	}
	slices.SortFunc(items, func(a, b *domain.Item) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return items, nil
}

// ListTenants returns the tenants owning active items.
func (r *ItemStore) ListTenants(ctx context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	seen := map[string]bool{}
	tenants := []string{}
	for _, item := range r.s.items {
		if item.Active && !seen[item.TenantID] {
			seen[item.TenantID] = true
			tenants = append(tenants, item.TenantID)
		}
	}
	slices.Sort(tenants)
	return tenants, nil
}

func duplicateName() error {
	return errors.Conflict("an active item with this name already exists")
}

// activeNameTaken must be called with mu held.
func (s *Store) activeNameTaken(tenantID, name, exceptID string) bool {
	key := domain.NameKey(name)
	for _, other := range s.items {
		if other.TenantID == tenantID && other.Active && other.ID != exceptID && domain.NameKey(other.Name) == key {
			return true
		}
	}
	return false
}

// BatchStore implements repository.BatchStore.
type BatchStore struct{ s *Store }

// Create inserts a batch for an existing item of the tenant.
func (r *BatchStore) Create(ctx context.Context, batch *domain.Batch) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	item, ok := r.s.items[batch.ItemID]
	if !ok || item.TenantID != tenantID {
		return errors.NotFound("referenced record")
	}
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	batch.TenantID = tenantID
	now := r.s.now()
	batch.CreatedAt, batch.UpdatedAt = now, now

	stored := *batch
	r.s.batches[batch.ID] = &stored
	return nil
}

// GetByID returns a copy of the batch.
func (r *BatchStore) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	batch, ok := r.s.batches[id]
	if !ok || batch.TenantID != tenantID {
		return nil, errors.NotFound("batch", id)
	}
	out := *batch
	return &out, nil
}

// ListByItem returns copies of the item's batches in canonical order.
func (r *BatchStore) ListByItem(ctx context.Context, itemID string) ([]*domain.Batch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.s.batchesOf(tenantID, itemID), nil
}

// batchesOf must be called with mu held.
func (s *Store) batchesOf(tenantID, itemID string) []*domain.Batch {
	batches := []*domain.Batch{}
	for _, b := range s.batches {
		if b.TenantID == tenantID && b.ItemID == itemID {
			out := *b
			batches = append(batches, &out)
		}
	}
	domain.SortBatches(batches)
	return batches
}

// StockLevels folds every item's batches with domain.ComputeStock.
func (r *BatchStore) StockLevels(ctx context.Context) (map[string]domain.Stock, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byItem := map[string][]*domain.Batch{}
	for _, b := range r.s.batches {
		if b.TenantID == tenantID {
			byItem[b.ItemID] = append(byItem[b.ItemID], b)
		}
	}

	levels := make(map[string]domain.Stock, len(byItem))
	for itemID, batches := range byItem {
		levels[itemID] = domain.ComputeStock(itemID, batches)
	}
	return levels, nil
}

// ListExpiring lists non-exhausted batches of active items expiring on or
// before cutoff's day.
func (r *BatchStore) ListExpiring(ctx context.Context, cutoff time.Time) ([]*domain.ExpiringBatch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	day := domain.NewDate(cutoff).Time

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*domain.Batch
	for _, b := range r.s.batches {
		if b.TenantID != tenantID || !domain.ExpiresBy(b, day) {
			continue
		}
		if item, ok := r.s.items[b.ItemID]; !ok || !item.Active {
			continue
		}
		out := *b
		matched = append(matched, &out)
	}
	domain.SortBatches(matched)

	expiring := make([]*domain.ExpiringBatch, 0, len(matched))
	for _, b := range matched {
		expiring = append(expiring, &domain.ExpiringBatch{Batch: *b, ItemName: r.s.items[b.ItemID].Name})
	}
	return expiring, nil
}

// ApplyAllocation checks every line against the current remaining
// quantities before touching anything, so a stale plan leaves no trace.
func (r *BatchStore) ApplyAllocation(ctx context.Context, alloc *domain.Allocation) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// Lines may name the same batch twice; check the summed demand.
	demand := map[string]decimal.Decimal{}
	for _, line := range alloc.Lines {
		demand[line.BatchID] = demand[line.BatchID].Add(line.QuantityTaken)
	}
	for batchID, qty := range demand {
		b, ok := r.s.batches[batchID]
		if !ok || b.TenantID != tenantID || b.RemainingQuantity.LessThan(qty) {
			return repository.ErrStaleBatch
		}
	}

	now := r.s.now()
	for _, line := range alloc.Lines {
		b := r.s.batches[line.BatchID]
		updated := *b
		updated.RemainingQuantity = b.RemainingQuantity.Sub(line.QuantityTaken)
		updated.UpdatedAt = now
		r.s.batches[line.BatchID] = &updated

		r.s.consumptions = append(r.s.consumptions, &domain.Consumption{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			ItemID:      alloc.ItemID,
			BatchID:     line.BatchID,
			Quantity:    line.QuantityTaken,
			ConsumedAt:  alloc.At,
			PerformedBy: alloc.PerformedBy,
			Reference:   alloc.Reference,
		})
	}
	return nil
}

// ConsumptionStore implements repository.ConsumptionStore.
type ConsumptionStore struct{ s *Store }

// ListByItem returns the item's consumptions, newest first.
func (r *ConsumptionStore) ListByItem(ctx context.Context, itemID string) ([]*domain.Consumption, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*domain.Consumption{}
	for i := len(r.s.consumptions) - 1; i >= 0; i-- {
		c := r.s.consumptions[i]
		if c.TenantID == tenantID && c.ItemID == itemID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}
