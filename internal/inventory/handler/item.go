package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/labstock/internal/inventory/domain"
	"github.com/medflow/labstock/internal/inventory/service"
	"github.com/medflow/labstock/pkg/errors"
	"github.com/medflow/labstock/pkg/httputil"
	"github.com/medflow/labstock/pkg/logger"
)

var errInvalidKind = errors.Field("type", "must be one of: equipment, reagent")

// ItemHandler handles item endpoints
type ItemHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(svc *service.InventoryService, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		service: svc,
		logger:  log,
	}
}

// List lists inventory items with their current stock.
// Query: search (name substring), type (equipment|reagent), active (true
// lists active items, false lists deactivated ones, absent lists both).
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.ItemFilter{
		Search: r.URL.Query().Get("search"),
		Kind:   domain.Kind(r.URL.Query().Get("type")),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		httputil.Error(w, errInvalidKind)
		return
	}

	active, err := httputil.QueryBool(r, "active")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	filter.Active = active

	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, items)
}

// Get gets an item by ID together with its stock
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Create creates a new item
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.ItemInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&in); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// Update applies a partial update to an item
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch domain.ItemPatch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&patch); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.UpdateItem(r.Context(), id, patch)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Delete deactivates an item. History is kept.
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeactivateItem(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Stock returns the aggregate stock of an item
func (h *ItemHandler) Stock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	stock, err := h.service.StockOf(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stock)
}

// Consumptions lists the consumption history of an item
func (h *ItemHandler) Consumptions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	consumptions, err := h.service.ListConsumptions(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, consumptions)
}
