package service

import (
	"context"

	"github.com/medflow/labstock/internal/inventory/domain"
)

// DashboardStats summarizes the inventory of the current tenant.
type DashboardStats struct {
	TotalItems    int                 `json:"total_items"`
	LowStockCount int                 `json:"low_stock_count"`
	ExpiringCount int                 `json:"expiring_count"`
	ExpiredCount  int                 `json:"expired_count"`
	KindBreakdown map[domain.Kind]int `json:"kind_breakdown"`
}

// GetDashboardStats counts active items per kind, items at or below their
// minimum, and batches with stock that expire within the configured window.
// Batches past their expiry day are counted as expired instead.
func (s *InventoryService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	items, err := s.items.List(ctx, domain.ActiveItems())
	if err != nil {
		return nil, err
	}

	low, err := s.LowStock(ctx, nil)
	if err != nil {
		return nil, err
	}

	expiring, err := s.ExpiringSoon(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		TotalItems:    len(items),
		LowStockCount: len(low),
		KindBreakdown: make(map[domain.Kind]int),
	}
	for _, item := range items {
		stats.KindBreakdown[item.Kind]++
	}

	now := s.now()
	for _, b := range expiring {
		if b.ExpiredAt(now) {
			stats.ExpiredCount++
		} else {
			stats.ExpiringCount++
		}
	}
	return stats, nil
}
