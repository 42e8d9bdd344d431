package handler

import (
	"context"
	"net/http"

	"github.com/medflow/labstock/internal/inventory/service"
	"github.com/medflow/labstock/pkg/errors"
	"github.com/medflow/labstock/pkg/httputil"
	"github.com/medflow/labstock/pkg/logger"
	"github.com/medflow/labstock/pkg/tenant"
)

type summarySource interface {
	GetDashboardStats(ctx context.Context) (*service.DashboardStats, error)
}

// DashboardHandler serves the per-tenant inventory summary: active items by
// kind, low-stock items, and batches expiring or expired within the
// configured window.
type DashboardHandler struct {
	stats  summarySource
	logger *logger.Logger
}

// NewDashboardHandler wires the summary endpoint to src.
func NewDashboardHandler(src summarySource, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		stats:  src,
		logger: log,
	}
}

// GetStats answers GET /dashboard/stats.
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetDashboardStats(r.Context())
	if err != nil {
		var appErr *errors.AppError
		if !errors.As(err, &appErr) {
			tenantID, _ := tenant.TenantID(r.Context())
			h.logger.WithTenantID(tenantID).Error().Err(err).Msg("failed to build inventory summary")
		}
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}
