package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/pkg/database"
	"github.com/medflow/labstock/pkg/errors"
	"github.com/medflow/labstock/pkg/tenant"
)

const itemColumns = `id, tenant_id, name, kind, unit, min_stock, active, description, created_at, updated_at`

// ItemRepository handles inventory item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create inserts a new item. A duplicate active name within the tenant is
// reported as a conflict by the unique index.
func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.TenantID = tenantID

	query := `
		INSERT INTO inventory_items (id, tenant_id, name, kind, unit, min_stock, active, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowxContext(ctx, query,
		item.ID, item.TenantID, item.Name, item.Kind, item.Unit,
		item.MinStock, item.Active, item.Description,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

// GetByID gets an item by ID, active or not.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, errors.NotFound("item", id)
	}

	var item domain.Item
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE tenant_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &item, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item", id)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

// Update writes every mutable field of item.
func (r *ItemRepository) Update(ctx context.Context, item *domain.Item) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}
	if !validID(item.ID) {
		return errors.NotFound("item", item.ID)
	}

	query := `
		UPDATE inventory_items SET
			name = $3, kind = $4, unit = $5, min_stock = $6, active = $7, description = $8,
			updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`

	err = r.db.QueryRowxContext(ctx, query,
		tenantID, item.ID, item.Name, item.Kind, item.Unit,
		item.MinStock, item.Active, item.Description,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return errors.NotFound("item", item.ID)
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// List returns the tenant's items matching filter, ordered by name.
func (r *ItemRepository) List(ctx context.Context, filter domain.ItemFilter) ([]*domain.Item, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		query += fmt.Sprintf(` AND name ILIKE $%d`, len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(` AND kind = $%d`, len(args))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		query += fmt.Sprintf(` AND active = $%d`, len(args))
	}
	query += ` ORDER BY lower(name), id`

	items := []*domain.Item{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// ListTenants returns the tenants that own active items. It is the only
// query not scoped to a tenant.
func (r *ItemRepository) ListTenants(ctx context.Context) ([]string, error) {
	var tenantIDs []string
	query := `SELECT DISTINCT tenant_id FROM inventory_items WHERE active = TRUE ORDER BY tenant_id`
	if err := r.db.SelectContext(ctx, &tenantIDs, query); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenantIDs, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
