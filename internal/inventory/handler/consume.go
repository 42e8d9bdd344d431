package handler

import (
	"net/http"

	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/internal/inventory/service"
	"github.com/medflow/labstock/pkg/httputil"
	"github.com/medflow/labstock/pkg/logger"
)

// ConsumeHandler handles stock consumption
type ConsumeHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewConsumeHandler creates a new consume handler
func NewConsumeHandler(svc *service.InventoryService, log *logger.Logger) *ConsumeHandler {
	return &ConsumeHandler{
		service: svc,
		logger:  log,
	}
}

// Consume draws stock from an item's batches and returns the fulfillment
// report. A shortfall is a 200 with partial=true.
func (h *ConsumeHandler) Consume(w http.ResponseWriter, r *http.Request) {
	var req domain.ConsumeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.service.Consume(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
