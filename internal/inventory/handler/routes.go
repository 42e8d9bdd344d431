package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/medflow/labstock/internal/inventory/service"
	"github.com/medflow/labstock/pkg/logger"
)

// Routes mounts the inventory API on r. The caller installs tenant
// middleware.
func Routes(r chi.Router, svc *service.InventoryService, log *logger.Logger) {
	itemHandler := NewItemHandler(svc, log)
	batchHandler := NewBatchHandler(svc, log)
	consumeHandler := NewConsumeHandler(svc, log)
	alertHandler := NewAlertHandler(svc, log)
	dashboardHandler := NewDashboardHandler(svc, log)

	r.Route("/items", func(r chi.Router) {
		r.Get("/", itemHandler.List)
		r.Post("/", itemHandler.Create)
		r.Get("/{id}", itemHandler.Get)
		r.Put("/{id}", itemHandler.Update)
		r.Delete("/{id}", itemHandler.Delete)
		r.Get("/{id}/stock", itemHandler.Stock)
		r.Get("/{id}/consumptions", itemHandler.Consumptions)
		r.Get("/{id}/batches", batchHandler.ListByItem)
		r.Post("/{id}/batches", batchHandler.Create)
	})

	r.Get("/batches/{id}", batchHandler.Get)

	r.Post("/consume", consumeHandler.Consume)

	r.Get("/low-stock", alertHandler.LowStock)
	r.Get("/expiring-soon", alertHandler.ExpiringSoon)

	r.Get("/dashboard/stats", dashboardHandler.GetStats)
}
