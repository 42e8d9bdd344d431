package service

import (
	"context"
	"testing"
	"time"

	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/internal/inventory/events"
	"github.com/medflow/labstock/internal/inventory/repository"
	"github.com/medflow/labstock/internal/inventory/repository/memory"
	"github.com/medflow/labstock/pkg/actor"
	"github.com/medflow/labstock/pkg/config"
	"github.com/medflow/labstock/pkg/errors"
	"github.com/medflow/labstock/pkg/logger"
	"github.com/medflow/labstock/pkg/messaging"
	"github.com/medflow/labstock/pkg/tenant"
	"github.com/medflow/labstock/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const testTenant = "lab-1"

var today = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *InventoryService
	store     *memory.Store
	publisher *testutil.MockPublisher
	ctx       context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	return newFixtureWithBatches(t, store, store.Batches())
}

func newFixtureWithBatches(t *testing.T, store *memory.Store, batches repository.BatchStore) *fixture {
	t.Helper()
	pub := testutil.NewMockPublisher()
	cfg := config.InventoryConfig{ExpiryWindowDays: 30, AllocationRetries: 3}
	svc := NewInventoryService(store.Items(), batches, store.Consumptions(), events.New(pub, logger.Nop()), cfg, logger.Nop())
	svc.now = func() time.Time { return today }
	return &fixture{
		svc:       svc,
		store:     store,
		publisher: pub,
		ctx:       tenant.WithTenantID(context.Background(), testTenant),
	}
}

func (f *fixture) item(t *testing.T, name string, minStock int64) *domain.Item {
	t.Helper()
	item, err := f.svc.CreateItem(f.ctx, domain.ItemInput{
		Name:     name,
		Kind:     domain.KindReagent,
		MinStock: decimal.NewFromInt(minStock),
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) batch(t *testing.T, itemID, no string, qty int64, expiryInDays *int) *domain.Batch {
	t.Helper()
	in := domain.BatchInput{BatchNo: &no, Quantity: decimal.NewFromInt(qty)}
	if expiryInDays != nil {
		d := domain.NewDate(today.AddDate(0, 0, *expiryInDays))
		in.ExpiryDate = &d
	}
	b, err := f.svc.AddBatch(f.ctx, itemID, in)
	require.NoError(t, err)
	return b
}

func days(n int) *int { return &n }

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func assertLines(t *testing.T, want map[string]int64, got []domain.FulfillmentLine) {
	t.Helper()
	require.Len(t, got, len(want))
	for _, line := range got {
		qty, ok := want[line.BatchID]
		require.True(t, ok, "unexpected batch %s", line.BatchID)
		assert.True(t, dec(qty).Equal(line.QuantityTaken), "batch %s took %s", line.BatchID, line.QuantityTaken)
	}
}

func remaining(t *testing.T, f *fixture, batchID string) decimal.Decimal {
	t.Helper()
	b, err := f.svc.GetBatch(f.ctx, batchID)
	require.NoError(t, err)
	return b.RemainingQuantity
}

func TestConsume_FEFOOrder(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Ethanol 70%", 0)
	b3 := f.batch(t, item.ID, "B3", 2, nil)
	b2 := f.batch(t, item.ID, "B2", 5, days(10))
	b1 := f.batch(t, item.ID, "B1", 3, days(5))

	report, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(6)})
	require.NoError(t, err)

	assert.True(t, dec(6).Equal(report.Used))
	assert.False(t, report.Partial)
	require.Len(t, report.Details, 2)
	assert.Equal(t, b1.ID, report.Details[0].BatchID)
	assert.Equal(t, "B1", report.Details[0].BatchNo)
	assert.Equal(t, b2.ID, report.Details[1].BatchID)
	assertLines(t, map[string]int64{b1.ID: 3, b2.ID: 3}, report.Details)

	assert.True(t, remaining(t, f, b1.ID).IsZero())
	assert.True(t, dec(2).Equal(remaining(t, f, b2.ID)))
	assert.True(t, dec(2).Equal(remaining(t, f, b3.ID)))

	// Newest first: the later consume, then this one's lines in reverse.
	_, err = f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(1), BatchID: &b3.ID})
	require.NoError(t, err)
	consumptions, err := f.svc.ListConsumptions(f.ctx, item.ID)
	require.NoError(t, err)
	var order []string
	for _, c := range consumptions {
		order = append(order, c.BatchID)
	}
	assert.Equal(t, []string{b3.ID, b2.ID, b1.ID}, order)
}

func TestConsume_PartialFulfillment(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Gloves M", 0)
	b1 := f.batch(t, item.ID, "B1", 3, days(5))
	b3 := f.batch(t, item.ID, "B3", 2, nil)

	_, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(3)})
	require.NoError(t, err)
	assert.True(t, remaining(t, f, b1.ID).IsZero())

	report, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(5)})
	require.NoError(t, err)
	assert.True(t, dec(2).Equal(report.Used))
	assert.True(t, report.Partial)
	assertLines(t, map[string]int64{b3.ID: 2}, report.Details)
}

func TestConsume_NoStock(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Pipette tips", 0)

	report, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(4)})
	require.NoError(t, err)
	assert.True(t, report.Used.IsZero())
	assert.True(t, report.Partial)
	assert.NotNil(t, report.Details)
	assert.Empty(t, report.Details)
	f.publisher.AssertNoEventsPublished(t)
}

func TestConsume_Validation(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Saline", 0)
	b := f.batch(t, item.ID, "S1", 5, nil)

	for _, qty := range []string{"0", "-2", "0.00006", "0.00001"} {
		_, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: decimal.RequireFromString(qty)})
		assert.True(t, errors.IsValidation(err), "quantity %s", qty)
	}
	assert.True(t, dec(5).Equal(remaining(t, f, b.ID)))
	consumptions, err := f.svc.ListConsumptions(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, consumptions)
}

func TestConsume_UnknownOrInactiveItem(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: "00000000-0000-0000-0000-000000000000", Quantity: dec(1)})
	assert.True(t, errors.IsNotFound(err))

	item := f.item(t, "Old reagent", 0)
	b := f.batch(t, item.ID, "O1", 5, nil)
	require.NoError(t, f.svc.DeactivateItem(f.ctx, item.ID))

	_, err = f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(1)})
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, dec(5).Equal(remaining(t, f, b.ID)))
}

func TestConsume_PreferredBatch(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Buffer", 0)
	early := f.batch(t, item.ID, "E", 3, days(5))
	late := f.batch(t, item.ID, "L", 4, days(20))

	t.Run("drawn first then normal order", func(t *testing.T) {
		report, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(5), BatchID: &late.ID})
		require.NoError(t, err)
		require.Len(t, report.Details, 2)
		assert.Equal(t, late.ID, report.Details[0].BatchID)
		assertLines(t, map[string]int64{late.ID: 4, early.ID: 1}, report.Details)
	})

	t.Run("exhausted preferred is ignored", func(t *testing.T) {
		report, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(1), BatchID: &late.ID})
		require.NoError(t, err)
		assertLines(t, map[string]int64{early.ID: 1}, report.Details)
	})

	t.Run("unknown batch", func(t *testing.T) {
		missing := "00000000-0000-0000-0000-000000000001"
		_, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(1), BatchID: &missing})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("batch of another item", func(t *testing.T) {
		other := f.item(t, "Other", 0)
		foreign := f.batch(t, other.ID, "X", 9, nil)
		_, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(1), BatchID: &foreign.ID})
		assert.True(t, errors.IsNotFound(err))
		assert.True(t, dec(9).Equal(remaining(t, f, foreign.ID)))
	})
}

func TestConsume_LedgerInvariants(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Swabs", 0)
	f.batch(t, item.ID, "A", 7, days(3))
	f.batch(t, item.ID, "B", 4, days(9))
	f.batch(t, item.ID, "C", 6, nil)

	for _, qty := range []int64{2, 5, 1, 8, 3} {
		before, err := f.svc.StockOf(f.ctx, item.ID)
		require.NoError(t, err)

		report, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(qty)})
		require.NoError(t, err)

		sum := decimal.Zero
		for _, line := range report.Details {
			assert.True(t, line.QuantityTaken.IsPositive())
			sum = sum.Add(line.QuantityTaken)
		}
		assert.True(t, sum.Equal(report.Used))

		after, err := f.svc.StockOf(f.ctx, item.ID)
		require.NoError(t, err)
		assert.True(t, before.Stock.Sub(after.Stock).Equal(report.Used))

		batches, err := f.svc.ListBatches(f.ctx, item.ID)
		require.NoError(t, err)
		for _, b := range batches {
			assert.False(t, b.RemainingQuantity.IsNegative())
			assert.True(t, b.RemainingQuantity.LessThanOrEqual(b.Quantity))
		}
	}
}

func TestConsume_ConcurrentSingleBatch(t *testing.T) {
	const n = 50
	f := newFixture(t)
	item := f.item(t, "Syringes", 0)
	b := f.batch(t, item.ID, "S", n, nil)

	var g errgroup.Group
	reports := make([]*domain.FulfillmentReport, n)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			report, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(1)})
			reports[i] = report
			return err
		})
	}
	require.NoError(t, g.Wait())

	total := decimal.Zero
	for _, r := range reports {
		assert.False(t, r.Partial)
		total = total.Add(r.Used)
	}
	assert.True(t, dec(n).Equal(total))
	assert.True(t, remaining(t, f, b.ID).IsZero())
	assert.Equal(t, 0, f.svc.locks.Len())

	consumptions, err := f.svc.ListConsumptions(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, consumptions, n)
}

func TestConsume_ConcurrentOversubscribed(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Cuvettes", 0)
	f.batch(t, item.ID, "C1", 6, days(2))
	f.batch(t, item.ID, "C2", 4, nil)

	var g errgroup.Group
	reports := make([]*domain.FulfillmentReport, 25)
	for i := range reports {
		g.Go(func() error {
			report, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(1)})
			reports[i] = report
			return err
		})
	}
	require.NoError(t, g.Wait())

	total := decimal.Zero
	partial := 0
	for _, r := range reports {
		total = total.Add(r.Used)
		if r.Partial {
			partial++
		}
	}
	assert.True(t, dec(10).Equal(total))
	assert.Equal(t, 15, partial)

	stock, err := f.svc.StockOf(f.ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, stock.Stock.IsZero())
}

// staleBatches fails the first n allocations as if another writer got there
// first.
type staleBatches struct {
	*memory.BatchStore
	n        int
	attempts int
}

func (s *staleBatches) ApplyAllocation(ctx context.Context, alloc *domain.Allocation) error {
	s.attempts++
	if s.attempts <= s.n {
		return repository.ErrStaleBatch
	}
	return s.BatchStore.ApplyAllocation(ctx, alloc)
}

func TestConsume_RetriesStalePlan(t *testing.T) {
	store := memory.New()
	stale := &staleBatches{BatchStore: store.Batches(), n: 2}
	f := newFixtureWithBatches(t, store, stale)
	item := f.item(t, "Tubes", 0)
	b := f.batch(t, item.ID, "T", 5, nil)

	report, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(2)})
	require.NoError(t, err)
	assert.True(t, dec(2).Equal(report.Used))
	assert.Equal(t, 3, stale.attempts)
	assert.True(t, dec(3).Equal(remaining(t, f, b.ID)))
}

func TestConsume_RetriesExhausted(t *testing.T) {
	store := memory.New()
	stale := &staleBatches{BatchStore: store.Batches(), n: 10}
	f := newFixtureWithBatches(t, store, stale)
	item := f.item(t, "Tubes", 0)
	b := f.batch(t, item.ID, "T", 5, nil)

	_, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(2)})
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, 3, stale.attempts)
	assert.True(t, dec(5).Equal(remaining(t, f, b.ID)))
	assert.Empty(t, f.publisher.Events(messaging.EventStockConsumed))
}

func TestConsume_RecordsActorAndPublishes(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Agar plates", 0)
	f.batch(t, item.ID, "P", 10, days(12))

	ctx := actor.WithActor(f.ctx, &actor.Actor{ID: "user-42", TenantID: testTenant})
	ref := "order-9"
	_, err := f.svc.Consume(ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(4), Reference: &ref})
	require.NoError(t, err)

	consumptions, err := f.svc.ListConsumptions(f.ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, consumptions, 1)
	require.NotNil(t, consumptions[0].PerformedBy)
	assert.Equal(t, "user-42", *consumptions[0].PerformedBy)
	assert.Equal(t, "order-9", *consumptions[0].Reference)

	published := f.publisher.Events(messaging.EventStockConsumed)
	require.Len(t, published, 1)
	data := published[0].Payload.(messaging.StockConsumedEvent)
	assert.Equal(t, testTenant, data.TenantID)
	assert.Equal(t, "user-42", data.PerformedBy)
	assert.True(t, dec(4).Equal(data.Used))
}

func TestItemCatalog(t *testing.T) {
	f := newFixture(t)

	t.Run("validation", func(t *testing.T) {
		_, err := f.svc.CreateItem(f.ctx, domain.ItemInput{Name: "  ", Kind: "gadget", MinStock: dec(-1)})
		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, appErr.Details, "name")
		assert.Contains(t, appErr.Details, "kind")
		assert.Contains(t, appErr.Details, "min_stock")
	})

	t.Run("duplicate active name", func(t *testing.T) {
		f.item(t, "Microscope", 0)
		_, err := f.svc.CreateItem(f.ctx, domain.ItemInput{Name: "microscope ", Kind: domain.KindEquipment})
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("same name in another tenant", func(t *testing.T) {
		other := tenant.WithTenantID(context.Background(), "lab-2")
		_, err := f.svc.CreateItem(other, domain.ItemInput{Name: "Microscope", Kind: domain.KindEquipment})
		assert.NoError(t, err)
	})

	t.Run("deactivate frees the name", func(t *testing.T) {
		old := f.item(t, "Centrifuge", 0)
		require.NoError(t, f.svc.DeactivateItem(f.ctx, old.ID))

		replacement := f.item(t, "Centrifuge", 0)
		assert.NotEqual(t, old.ID, replacement.ID)

		active := true
		_, err := f.svc.UpdateItem(f.ctx, old.ID, domain.ItemPatch{Active: &active})
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("update", func(t *testing.T) {
		item := f.item(t, "Thermometer", 1)
		name := "Digital thermometer"
		minStock := dec(4)
		updated, err := f.svc.UpdateItem(f.ctx, item.ID, domain.ItemPatch{Name: &name, MinStock: &minStock})
		require.NoError(t, err)
		assert.Equal(t, name, updated.Name)
		assert.True(t, minStock.Equal(updated.MinStock))
		assert.Equal(t, domain.KindReagent, updated.Kind)

		_, err = f.svc.UpdateItem(f.ctx, "00000000-0000-0000-0000-000000000000", domain.ItemPatch{Name: &name})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("list with stock", func(t *testing.T) {
		item := f.item(t, "Zinc stain", 0)
		f.batch(t, item.ID, "Z", 7, days(40))

		items, err := f.svc.ListItems(f.ctx, domain.ItemFilter{Search: "zinc"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.True(t, dec(7).Equal(items[0].Stock))
		require.NotNil(t, items[0].NextExpiry)

		got, err := f.svc.GetItem(f.ctx, item.ID)
		require.NoError(t, err)
		assert.True(t, dec(7).Equal(got.Stock))
	})
}

func TestAddBatch(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Reagent X", 0)

	for _, qty := range []string{"0", "1.23456"} {
		_, err := f.svc.AddBatch(f.ctx, item.ID, domain.BatchInput{Quantity: decimal.RequireFromString(qty)})
		assert.True(t, errors.IsValidation(err), "quantity %s", qty)
	}
	batches, err := f.svc.ListBatches(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, batches)

	b := f.batch(t, item.ID, "RX-1", 12, days(60))
	assert.True(t, dec(12).Equal(b.RemainingQuantity))
	assert.Equal(t, today, b.ReceivedDate)
	f.publisher.AssertEventPublished(t, messaging.EventBatchReceived)

	require.NoError(t, f.svc.DeactivateItem(f.ctx, item.ID))
	_, err = f.svc.AddBatch(f.ctx, item.ID, domain.BatchInput{Quantity: dec(1)})
	assert.True(t, errors.IsNotFound(err))

	_, err = f.svc.ListBatches(f.ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.IsNotFound(err))
}

func TestStockOf(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Lancets", 0)
	f.batch(t, item.ID, "L1", 3, days(9))
	f.batch(t, item.ID, "L2", 4, days(4))
	f.batch(t, item.ID, "L3", 5, nil)

	first, err := f.svc.StockOf(f.ctx, item.ID)
	require.NoError(t, err)
	second, err := f.svc.StockOf(f.ctx, item.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, dec(12).Equal(first.Stock))
	require.NotNil(t, first.NextExpiry)
	assert.Equal(t, domain.NewDate(today.AddDate(0, 0, 4)).Time, *first.NextExpiry)

	_, err = f.svc.StockOf(f.ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.IsNotFound(err))
}

func TestLowStock(t *testing.T) {
	f := newFixture(t)
	low := f.item(t, "Low", 0)
	f.batch(t, low.ID, "L", 8, nil)
	high := f.item(t, "High", 0)
	f.batch(t, high.ID, "H", 12, nil)
	empty := f.item(t, "Empty", 5)

	threshold := dec(10)
	entries, err := f.svc.LowStock(f.ctx, &threshold)
	require.NoError(t, err)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ItemID)
	}
	assert.Equal(t, []string{empty.ID, low.ID}, ids)

	entries, err = f.svc.LowStock(f.ctx, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, empty.ID, entries[0].ItemID)
	assert.True(t, dec(5).Equal(entries[0].MinStock))

	negative := dec(-1)
	_, err = f.svc.LowStock(f.ctx, &negative)
	assert.True(t, errors.IsValidation(err))
}

func TestExpiringSoon(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Antibody", 0)
	soon := f.batch(t, item.ID, "S", 2, days(5))
	f.batch(t, item.ID, "F", 2, days(30))
	used := f.batch(t, item.ID, "U", 1, days(1))
	_, err := f.svc.Consume(f.ctx, domain.ConsumeRequest{ItemID: item.ID, Quantity: dec(1), BatchID: &used.ID})
	require.NoError(t, err)

	batches, err := f.svc.ExpiringSoon(f.ctx, days(7))
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, soon.ID, batches[0].ID)
	assert.Equal(t, "Antibody", batches[0].ItemName)

	batches, err = f.svc.ExpiringSoon(f.ctx, nil)
	require.NoError(t, err)
	assert.Len(t, batches, 2)

	batches, err = f.svc.ExpiringSoon(f.ctx, days(config.MaxExpiryWindowDays))
	require.NoError(t, err)
	assert.Len(t, batches, 2)

	for _, n := range []int{-1, config.MaxExpiryWindowDays + 1, 1 << 62} {
		_, err = f.svc.ExpiringSoon(f.ctx, days(n))
		assert.True(t, errors.IsValidation(err), "days %d", n)
	}
}

func TestGetDashboardStats(t *testing.T) {
	f := newFixture(t)
	reagent := f.item(t, "Reagent", 5)
	f.batch(t, reagent.ID, "R1", 2, days(-1))
	f.batch(t, reagent.ID, "R2", 1, days(10))
	scope := f.item(t, "Microscope", 0)
	_, err := f.svc.UpdateItem(f.ctx, scope.ID, domain.ItemPatch{Kind: kindPtr(domain.KindEquipment)})
	require.NoError(t, err)
	f.batch(t, scope.ID, "M1", 1, nil)

	stats, err := f.svc.GetDashboardStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 1, stats.LowStockCount)
	assert.Equal(t, 1, stats.ExpiringCount)
	assert.Equal(t, 1, stats.ExpiredCount)
	assert.Equal(t, map[domain.Kind]int{domain.KindReagent: 1, domain.KindEquipment: 1}, stats.KindBreakdown)
}

func kindPtr(k domain.Kind) *domain.Kind { return &k }
