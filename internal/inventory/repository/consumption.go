package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/pkg/database"
	"github.com/medflow/labstock/pkg/tenant"
)

// ConsumptionRepository reads the consumption audit trail. Rows are written
// by BatchRepository.ApplyAllocation in the same transaction as the
// decrements.
type ConsumptionRepository struct {
	db *database.DB
}

// NewConsumptionRepository creates a new consumption repository
func NewConsumptionRepository(db *database.DB) *ConsumptionRepository {
	return &ConsumptionRepository{db: db}
}

// ListByItem returns an item's consumptions, newest first.
func (r *ConsumptionRepository) ListByItem(ctx context.Context, itemID string) ([]*domain.Consumption, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	consumptions := []*domain.Consumption{}
	if !validID(itemID) {
		return consumptions, nil
	}

	query := `
		SELECT id, tenant_id, item_id, batch_id, quantity, consumed_at, performed_by, reference
		FROM inventory_consumptions
		WHERE tenant_id = $1 AND item_id = $2
		ORDER BY consumed_at DESC, seq DESC
	`
	if err := r.db.SelectContext(ctx, &consumptions, query, tenantID, itemID); err != nil {
		return nil, fmt.Errorf("list consumptions: %w", err)
	}
	return consumptions, nil
}

func insertConsumption(ctx context.Context, tx *sqlx.Tx, c *domain.Consumption) error {
	query := `
		INSERT INTO inventory_consumptions (
			id, tenant_id, item_id, batch_id, quantity, consumed_at, performed_by, reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		c.ID, c.TenantID, c.ItemID, c.BatchID, c.Quantity, c.ConsumedAt, c.PerformedBy, c.Reference,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("insert consumption: %w", err)
	}
	return nil
}
