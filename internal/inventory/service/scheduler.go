package service

import (
	"context"
	"time"

	"github.com/medflow/labstock/internal/inventory/repository"
	"github.com/medflow/labstock/pkg/actor"
	"github.com/medflow/labstock/pkg/logger"
	"github.com/medflow/labstock/pkg/tenant"
)

// AlertScheduler runs alert scans periodically across all tenants.
// Tenants are discovered from the item catalog and each scan runs with that
// tenant's context and the system actor.
type AlertScheduler struct {
	scanner  *AlertScanner
	items    repository.ItemStore
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewAlertScheduler creates a new alert scheduler. An interval of zero or
// less disables it.
func NewAlertScheduler(scanner *AlertScanner, items repository.ItemStore, interval time.Duration, log *logger.Logger) *AlertScheduler {
	return &AlertScheduler{
		scanner:  scanner,
		items:    items,
		interval: interval,
		logger:   log.WithComponent("alert-scheduler"),
	}
}

// Start starts the scheduler in a background goroutine.
// It scans once immediately and then on every tick.
func (s *AlertScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("alert scheduler disabled")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("alert scheduler started")

		s.RunCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("alert scheduler stopped")
				return
			case <-ticker.C:
				s.RunCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine and waits for a running cycle to end.
func (s *AlertScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// RunCycle scans every tenant once.
func (s *AlertScheduler) RunCycle(ctx context.Context) {
	start := time.Now()

	tenantIDs, err := s.items.ListTenants(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list tenants")
		return
	}

	alertCount := 0
	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			return
		}

		tenantCtx := tenant.WithTenantID(ctx, tenantID)
		tenantCtx = actor.WithActor(tenantCtx, actor.SystemActor(tenantID))

		alerts, err := s.scanner.ScanAll(tenantCtx)
		if err != nil {
			s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("alert scan failed for tenant")
		}
		alertCount += len(alerts)
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("tenant_count", len(tenantIDs)).
		Int("alert_count", alertCount).
		Msg("alert scan cycle completed")
}
