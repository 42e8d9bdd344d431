package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/pkg/database"
	"github.com/medflow/labstock/pkg/errors"
	"github.com/medflow/labstock/pkg/tenant"
	"github.com/shopspring/decimal"
)

const batchColumns = `id, tenant_id, item_id, batch_no, lot_no, quantity, remaining_quantity,
	expiry_date, received_date, supplier_name, unit_cost, notes, created_at, updated_at`

// canonicalOrder mirrors domain.CompareBatches.
const canonicalOrder = `expiry_date ASC NULLS LAST, received_date ASC, id ASC`

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	batch.TenantID = tenantID

	query := `
		INSERT INTO inventory_batches (
			id, tenant_id, item_id, batch_no, lot_no, quantity, remaining_quantity,
			expiry_date, received_date, supplier_name, unit_cost, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowxContext(ctx, query,
		batch.ID, batch.TenantID, batch.ItemID, batch.BatchNo, batch.LotNo,
		batch.Quantity, batch.RemainingQuantity, batch.ExpiryDate, batch.ReceivedDate,
		batch.SupplierName, batch.UnitCost, batch.Notes,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, errors.NotFound("batch", id)
	}

	var batch domain.Batch
	query := `SELECT ` + batchColumns + ` FROM inventory_batches WHERE tenant_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &batch, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch", id)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &batch, nil
}

// ListByItem lists every batch of an item in allocation order.
func (r *BatchRepository) ListByItem(ctx context.Context, itemID string) ([]*domain.Batch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	batches := []*domain.Batch{}
	if !validID(itemID) {
		return batches, nil
	}

	query := `SELECT ` + batchColumns + ` FROM inventory_batches
		WHERE tenant_id = $1 AND item_id = $2
		ORDER BY ` + canonicalOrder
	if err := r.db.SelectContext(ctx, &batches, query, tenantID, itemID); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

type stockRow struct {
	ItemID     string          `db:"item_id"`
	Stock      decimal.Decimal `db:"stock"`
	NextExpiry *time.Time      `db:"next_expiry"`
}

// StockLevels aggregates the tenant's batches per item.
func (r *BatchRepository) StockLevels(ctx context.Context) (map[string]domain.Stock, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT item_id,
		       COALESCE(SUM(remaining_quantity), 0) AS stock,
		       MIN(expiry_date) FILTER (WHERE remaining_quantity > 0) AS next_expiry
		FROM inventory_batches
		WHERE tenant_id = $1
		GROUP BY item_id
	`

	var rows []stockRow
	if err := r.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, fmt.Errorf("stock levels: %w", err)
	}

	levels := make(map[string]domain.Stock, len(rows))
	for _, row := range rows {
		levels[row.ItemID] = domain.Stock{ItemID: row.ItemID, Stock: row.Stock, NextExpiry: row.NextExpiry}
	}
	return levels, nil
}

// ListExpiring lists non-exhausted batches of active items expiring on or
// before cutoff.
func (r *BatchRepository) ListExpiring(ctx context.Context, cutoff time.Time) ([]*domain.ExpiringBatch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT b.id, b.tenant_id, b.item_id, b.batch_no, b.lot_no, b.quantity, b.remaining_quantity,
		       b.expiry_date, b.received_date, b.supplier_name, b.unit_cost, b.notes,
		       b.created_at, b.updated_at, i.name AS item_name
		FROM inventory_batches b
		JOIN inventory_items i ON i.id = b.item_id
		WHERE b.tenant_id = $1
		  AND i.active = TRUE
		  AND b.remaining_quantity > 0
		  AND b.expiry_date IS NOT NULL
		  AND b.expiry_date <= $2::date
		ORDER BY b.expiry_date ASC, b.received_date ASC, b.id ASC
	`

	batches := []*domain.ExpiringBatch{}
	if err := r.db.SelectContext(ctx, &batches, query, tenantID, cutoff.UTC().Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list expiring batches: %w", err)
	}
	return batches, nil
}

// ApplyAllocation applies all decrements of alloc and writes one consumption
// row per line inside a single transaction. Each decrement is conditional on
// the batch still holding enough; a miss rolls everything back with
// ErrStaleBatch.
func (r *BatchRepository) ApplyAllocation(ctx context.Context, alloc *domain.Allocation) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE inventory_batches
		SET remaining_quantity = remaining_quantity - $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND remaining_quantity >= $3
	`

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, line := range alloc.Lines {
			result, err := tx.ExecContext(ctx, query, tenantID, line.BatchID, line.QuantityTaken)
			if err != nil {
				if appErr := database.MapPQError(err); appErr != nil {
					return appErr
				}
				return fmt.Errorf("decrement batch %s: %w", line.BatchID, err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrStaleBatch
			}

			c := &domain.Consumption{
				ID:          uuid.New().String(),
				TenantID:    tenantID,
				ItemID:      alloc.ItemID,
				BatchID:     line.BatchID,
				Quantity:    line.QuantityTaken,
				ConsumedAt:  alloc.At,
				PerformedBy: alloc.PerformedBy,
				Reference:   alloc.Reference,
			}
			if err := insertConsumption(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}
