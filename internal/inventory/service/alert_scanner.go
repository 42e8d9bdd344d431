package service

import (
	"context"
	"fmt"
	"time"

	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/internal/inventory/events"
	"github.com/medflow/labstock/pkg/logger"
)

// AlertScanner looks for low stock and expiring batches in the tenant of the
// context and publishes one alert per finding. Alerts are not stored, so a
// condition that persists is reported again on the next scan.
type AlertScanner struct {
	inventory   *InventoryService
	publisher   *events.InventoryEventPublisher
	horizonDays int
	now         func() time.Time
	logger      *logger.Logger
}

// NewAlertScanner creates a new alert scanner. horizonDays bounds the
// expiry scan; zero or less falls back to the expiring-soon window.
func NewAlertScanner(inventory *InventoryService, publisher *events.InventoryEventPublisher, horizonDays int, log *logger.Logger) *AlertScanner {
	return &AlertScanner{
		inventory:   inventory,
		publisher:   publisher,
		horizonDays: horizonDays,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      log.WithComponent("alert-scanner"),
	}
}

// ScanAll runs all alert scans and returns the alerts it published. A failing
// scan is logged and the others still run; the last error is returned.
func (s *AlertScanner) ScanAll(ctx context.Context) ([]*domain.Alert, error) {
	scanners := []struct {
		name string
		fn   func(context.Context) ([]*domain.Alert, error)
	}{
		{"low_stock", s.scanLowStock},
		{"expiry", s.scanExpiring},
	}

	var (
		alerts  []*domain.Alert
		lastErr error
	)
	for _, scanner := range scanners {
		found, err := scanner.fn(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("scanner", scanner.name).Msg("alert scan failed")
			lastErr = err
			continue
		}
		alerts = append(alerts, found...)
	}

	for _, alert := range alerts {
		s.publisher.PublishAlertGenerated(ctx, alert)
	}
	return alerts, lastErr
}

func (s *AlertScanner) scanLowStock(ctx context.Context) ([]*domain.Alert, error) {
	entries, err := s.inventory.LowStock(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("low stock query: %w", err)
	}

	alerts := make([]*domain.Alert, 0, len(entries))
	for _, e := range entries {
		severity := domain.SeverityWarning
		if e.Stock.IsZero() {
			severity = domain.SeverityCritical
		}
		alerts = append(alerts, &domain.Alert{
			Type:     domain.AlertLowStock,
			Severity: severity,
			Message:  fmt.Sprintf("%s: stock %s at or below minimum %s", e.Name, e.Stock, e.MinStock),
			ItemID:   e.ItemID,
		})
	}
	return alerts, nil
}

func (s *AlertScanner) scanExpiring(ctx context.Context) ([]*domain.Alert, error) {
	var days *int
	if s.horizonDays > 0 {
		days = &s.horizonDays
	}
	batches, err := s.inventory.ExpiringSoon(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("expiring soon query: %w", err)
	}

	now := s.now()
	alerts := make([]*domain.Alert, 0, len(batches))
	for _, b := range batches {
		severity := domain.SeverityWarning
		verb := "expires"
		if b.ExpiredAt(now) {
			severity = domain.SeverityCritical
			verb = "expired"
		}
		alerts = append(alerts, &domain.Alert{
			Type:     domain.AlertExpiringSoon,
			Severity: severity,
			Message: fmt.Sprintf("%s batch %s %s on %s with %s remaining",
				b.ItemName, b.Label(), verb, b.ExpiryDate.Format("2006-01-02"), b.RemainingQuantity),
			ItemID:  b.ItemID,
			BatchID: b.ID,
		})
	}
	return alerts, nil
}
