// Package domain holds the inventory data model and the pure parts of the
// allocation engine: validation, canonical batch ordering, consumption
// planning and stock aggregation. Nothing here touches storage.
package domain

import (
	"strings"
	"time"

	"github.com/medflow/labstock/pkg/errors"
	"github.com/shopspring/decimal"
)

func init() {
	// Quantities travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Kind classifies an item.
type Kind string

const (
	KindEquipment Kind = "equipment"
	KindReagent   Kind = "reagent"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindEquipment || k == KindReagent
}

// Item is an allocatable catalog entry. Items are never deleted, only
// deactivated; inactive items are excluded from allocation and alerting.
type Item struct {
	ID          string          `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	Name        string          `db:"name" json:"name"`
	Kind        Kind            `db:"kind" json:"kind"`
	Unit        *string         `db:"unit" json:"unit,omitempty"`
	MinStock    decimal.Decimal `db:"min_stock" json:"min_stock"`
	Active      bool            `db:"active" json:"active"`
	Description *string         `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// NameKey is the form under which active names must be unique.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ItemWithStock is an item together with its current aggregate stock.
type ItemWithStock struct {
	Item
	Stock      decimal.Decimal `json:"stock"`
	NextExpiry *time.Time      `json:"next_expiry"`
}

// ItemInput carries the fields of a new item.
type ItemInput struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Kind        Kind            `json:"kind" validate:"required,oneof=equipment reagent"`
	Unit        *string         `json:"unit,omitempty" validate:"omitempty,max=50"`
	MinStock    decimal.Decimal `json:"min_stock"`
	Active      *bool           `json:"active,omitempty"`
	Description *string         `json:"description,omitempty"`
}

// Validate checks the rules shared by every entry point.
func (in *ItemInput) Validate() error {
	details := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		details["name"] = "must not be empty"
	}
	if !in.Kind.Valid() {
		details["kind"] = "must be one of: equipment, reagent"
	}
	if in.MinStock.IsNegative() {
		details["min_stock"] = "must not be negative"
	}
	checkStorable(details, "min_stock", in.MinStock)
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// NewItem builds an item from validated input. ID and timestamps are left
// to the store.
func NewItem(tenantID string, in ItemInput) *Item {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return &Item{
		TenantID:    tenantID,
		Name:        strings.TrimSpace(in.Name),
		Kind:        in.Kind,
		Unit:        in.Unit,
		MinStock:    in.MinStock,
		Active:      active,
		Description: in.Description,
	}
}

// ItemPatch is a partial update; nil fields are left unchanged.
type ItemPatch struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	Kind        *Kind            `json:"kind,omitempty" validate:"omitempty,oneof=equipment reagent"`
	Unit        *string          `json:"unit,omitempty" validate:"omitempty,max=50"`
	MinStock    *decimal.Decimal `json:"min_stock,omitempty"`
	Active      *bool            `json:"active,omitempty"`
	Description *string          `json:"description,omitempty"`
}

// Validate checks the fields that are present.
func (p *ItemPatch) Validate() error {
	details := map[string]string{}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		details["name"] = "must not be empty"
	}
	if p.Kind != nil && !p.Kind.Valid() {
		details["kind"] = "must be one of: equipment, reagent"
	}
	if p.MinStock != nil {
		if p.MinStock.IsNegative() {
			details["min_stock"] = "must not be negative"
		}
		checkStorable(details, "min_stock", *p.MinStock)
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// Apply copies the present fields onto item.
func (p *ItemPatch) Apply(item *Item) {
	if p.Name != nil {
		item.Name = strings.TrimSpace(*p.Name)
	}
	if p.Kind != nil {
		item.Kind = *p.Kind
	}
	if p.Unit != nil {
		item.Unit = p.Unit
	}
	if p.MinStock != nil {
		item.MinStock = *p.MinStock
	}
	if p.Active != nil {
		item.Active = *p.Active
	}
	if p.Description != nil {
		item.Description = p.Description
	}
}

// ItemFilter narrows ListItems. Search is a case-insensitive name substring.
// A nil Active lists items in either state; otherwise only items whose
// active flag equals *Active are listed.
type ItemFilter struct {
	Search string
	Kind   Kind
	Active *bool
}

// ActiveItems is the filter used by stock alerting.
func ActiveItems() ItemFilter {
	active := true
	return ItemFilter{Active: &active}
}

// Matches reports whether item passes the filter.
func (f ItemFilter) Matches(item *Item) bool {
	if f.Active != nil && item.Active != *f.Active {
		return false
	}
	if f.Kind != "" && item.Kind != f.Kind {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}
