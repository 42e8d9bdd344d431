package handler

import (
	"net/http"

	"github.com/medflow/labstock/internal/inventory/service"
	"github.com/medflow/labstock/pkg/errors"
	"github.com/medflow/labstock/pkg/httputil"
	"github.com/medflow/labstock/pkg/logger"
	"github.com/shopspring/decimal"
)

// AlertHandler serves the low-stock and expiring-soon queries
type AlertHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc *service.InventoryService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		service: svc,
		logger:  log,
	}
}

// LowStock lists items at or below a threshold.
// Query: threshold (number, optional; defaults to each item's min_stock).
func (h *AlertHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	var threshold *decimal.Decimal
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			httputil.Error(w, errors.Field("threshold", "must be a number"))
			return
		}
		threshold = &v
	}

	entries, err := h.service.LowStock(r.Context(), threshold)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}

// ExpiringSoon lists batches expiring within the given number of days.
// Query: days (integer, optional).
func (h *AlertHandler) ExpiringSoon(w http.ResponseWriter, r *http.Request) {
	days, err := httputil.QueryInt(r, "days")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	batches, err := h.service.ExpiringSoon(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}
