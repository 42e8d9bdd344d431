package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/medflow/labstock/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemInput_Validate(t *testing.T) {
	tests := []struct {
		name      string
		input     ItemInput
		wantField string
	}{
		{"valid", ItemInput{Name: "Pipette tips", Kind: KindEquipment}, ""},
		{"blank name", ItemInput{Name: "  ", Kind: KindReagent}, "name"},
		{"unknown kind", ItemInput{Name: "x", Kind: "food"}, "kind"},
		{"negative min stock", ItemInput{Name: "x", Kind: KindReagent, MinStock: decimal.NewFromInt(-1)}, "min_stock"},
		{"min stock four places", ItemInput{Name: "x", Kind: KindReagent, MinStock: decimal.RequireFromString("2.1234")}, ""},
		{"min stock five places", ItemInput{Name: "x", Kind: KindReagent, MinStock: decimal.RequireFromString("2.12345")}, "min_stock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Contains(t, appErr.Details, tt.wantField)
		})
	}
}

func TestNewItem_TrimsAndDefaultsActive(t *testing.T) {
	item := NewItem("lab", ItemInput{Name: "  Ethanol ", Kind: KindReagent})
	assert.Equal(t, "Ethanol", item.Name)
	assert.True(t, item.Active)

	inactive := false
	item = NewItem("lab", ItemInput{Name: "x", Kind: KindReagent, Active: &inactive})
	assert.False(t, item.Active)
}

func TestItemPatch_ValidateAndApply(t *testing.T) {
	empty := " "
	assert.Error(t, (&ItemPatch{Name: &empty}).Validate())
	tooFine := decimal.RequireFromString("0.12345")
	assert.True(t, errors.IsValidation((&ItemPatch{MinStock: &tooFine}).Validate()))

	name := "Renamed"
	minStock := decimal.NewFromInt(4)
	item := &Item{Name: "Old", Kind: KindEquipment, MinStock: decimal.NewFromInt(1), Active: true}
	patch := ItemPatch{Name: &name, MinStock: &minStock}
	require.NoError(t, patch.Validate())
	patch.Apply(item)

	assert.Equal(t, "Renamed", item.Name)
	assert.Equal(t, KindEquipment, item.Kind)
	assert.True(t, item.MinStock.Equal(minStock))
	assert.True(t, item.Active)
}

func TestItemFilter_Matches(t *testing.T) {
	item := &Item{Name: "Sodium Chloride", Kind: KindReagent, Active: false}

	assert.True(t, ItemFilter{Search: "chlor"}.Matches(item))
	assert.False(t, ItemFilter{Search: "potassium"}.Matches(item))
	assert.False(t, ItemFilter{Kind: KindEquipment}.Matches(item))

	active, inactive := true, false
	tests := []struct {
		name   string
		filter ItemFilter
		item   *Item
		want   bool
	}{
		{"any state, inactive item", ItemFilter{}, item, true},
		{"active only, inactive item", ItemFilter{Active: &active}, item, false},
		{"inactive only, inactive item", ItemFilter{Active: &inactive}, item, true},
		{"inactive only, active item", ItemFilter{Active: &inactive}, &Item{Name: "Tips", Active: true}, false},
		{"alerting filter, active item", ActiveItems(), &Item{Name: "Tips", Active: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.item))
		})
	}
}

func TestBatchInput_Validate(t *testing.T) {
	cost := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	tests := []struct {
		name      string
		input     BatchInput
		wantField string
	}{
		{"valid", BatchInput{Quantity: decimal.NewFromInt(1)}, ""},
		{"fractional with cost", BatchInput{Quantity: decimal.RequireFromString("1.2346"), UnitCost: cost("0.0125")}, ""},
		{"zero quantity", BatchInput{Quantity: decimal.Zero}, "quantity"},
		{"quantity five places", BatchInput{Quantity: decimal.RequireFromString("1.23456")}, "quantity"},
		{"quantity overflows column", BatchInput{Quantity: decimal.RequireFromString("100000000000000")}, "quantity"},
		{"negative cost", BatchInput{Quantity: decimal.NewFromInt(1), UnitCost: cost("-2")}, "unit_cost"},
		{"cost five places", BatchInput{Quantity: decimal.NewFromInt(1), UnitCost: cost("0.00001")}, "unit_cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Contains(t, appErr.Details, tt.wantField)
		})
	}
}

func TestNewBatch_RemainingEqualsQuantity(t *testing.T) {
	item := &Item{ID: "item-1", TenantID: "lab"}
	blank := " "
	b := NewBatch(item, BatchInput{Quantity: decimal.NewFromInt(7), BatchNo: &blank}, day0)

	assert.True(t, b.RemainingQuantity.Equal(b.Quantity))
	assert.Equal(t, "item-1", b.ItemID)
	assert.Equal(t, "lab", b.TenantID)
	assert.Nil(t, b.BatchNo)
	assert.Equal(t, day0, b.ReceivedDate)
}

func TestDate_UnmarshalJSON(t *testing.T) {
	var in struct {
		A Date `json:"a"`
		B Date `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2026-05-04","b":"2026-05-04T22:30:00+02:00"}`), &in))

	want := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, in.A.Time)
	assert.Equal(t, want, in.B.Time)

	var bad Date
	assert.Error(t, json.Unmarshal([]byte(`"04.05.2026"`), &bad))
}

func TestComputeStock(t *testing.T) {
	bs := threeBatches()
	bs[0].RemainingQuantity = decimal.Zero // B1, earliest expiry but exhausted

	s := ComputeStock("item", bs)
	assert.True(t, s.Stock.Equal(dec(7)))
	require.NotNil(t, s.NextExpiry)
	assert.Equal(t, day0.AddDate(0, 0, 10), *s.NextExpiry)

	empty := ComputeStock("item", nil)
	assert.True(t, empty.Stock.IsZero())
	assert.Nil(t, empty.NextExpiry)
}

func TestIsLow(t *testing.T) {
	item := &Item{MinStock: dec(10)}
	threshold := dec(10)

	assert.True(t, IsLow(item, dec(8), &threshold))
	assert.False(t, IsLow(item, dec(12), &threshold))
	assert.True(t, IsLow(item, dec(10), nil))
	assert.False(t, IsLow(item, dec(11), nil))
}

func TestExpiresBy(t *testing.T) {
	now := day0
	cutoff := now.AddDate(0, 0, 7)

	soon := batch("soon", ptr(5), 3, 0)
	later := batch("later", ptr(30), 3, 0)
	gone := batch("gone", ptr(5), 3, 0)
	gone.RemainingQuantity = decimal.Zero

	assert.True(t, ExpiresBy(soon, cutoff))
	assert.False(t, ExpiresBy(later, cutoff))
	assert.False(t, ExpiresBy(gone, cutoff))
	assert.False(t, ExpiresBy(batch("none", nil, 3, 0), cutoff))
}

func TestBatch_ExpiredAt(t *testing.T) {
	b := batch("b", ptr(0), 1, 0)
	assert.False(t, b.ExpiredAt(day0.Add(15*time.Hour)))
	assert.True(t, b.ExpiredAt(day0.AddDate(0, 0, 1)))
}
