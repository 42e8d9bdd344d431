package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medflow/labstock/internal/inventory/events"
	"github.com/medflow/labstock/internal/inventory/handler"
	"github.com/medflow/labstock/internal/inventory/repository"
	"github.com/medflow/labstock/internal/inventory/repository/memory"
	"github.com/medflow/labstock/internal/inventory/service"
	"github.com/medflow/labstock/pkg/config"
	"github.com/medflow/labstock/pkg/database"
	"github.com/medflow/labstock/pkg/httputil"
	"github.com/medflow/labstock/pkg/logger"
	"github.com/medflow/labstock/pkg/messaging"
)

type stores struct {
	items        repository.ItemStore
	batches      repository.BatchStore
	consumptions repository.ConsumptionStore
	health       func(context.Context) map[string]string
	close        func() error
}

func openStores(cfg *config.Config, log *logger.Logger) (*stores, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		store := memory.New()
		return &stores{
			items:        store.Items(),
			batches:      store.Batches(),
			consumptions: store.Consumptions(),
			health: func(context.Context) map[string]string {
				return map[string]string{"status": "up", "driver": config.StorageMemory}
			},
			close: func() error { return nil },
		}, nil
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return &stores{
		items:        repository.NewItemRepository(db),
		batches:      repository.NewBatchRepository(db),
		consumptions: repository.NewConsumptionRepository(db),
		health:       db.Health,
		close:        db.Close,
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info().Str("storage", cfg.Storage.Driver).Msg("starting Inventory Service")

	st, err := openStores(cfg, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.close()

	// Events are optional; a nil publisher drops them.
	var (
		publisher *events.InventoryEventPublisher
		rmq       *messaging.RabbitMQ
	)
	if cfg.Events.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			return fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		defer rmq.Close()

		publisher, err = events.NewInventoryEventPublisher(rmq, log)
		if err != nil {
			return fmt.Errorf("create event publisher: %w", err)
		}
	}

	inventoryService := service.NewInventoryService(st.items, st.batches, st.consumptions, publisher, cfg.Inventory, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := service.NewAlertScanner(inventoryService, publisher, cfg.Inventory.AlertExpiryHorizon, log)
	scheduler := service.NewAlertScheduler(scanner, st.items, cfg.Inventory.AlertScanInterval, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Tenant-ID", "X-Tenant-Slug", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httputil.TenantMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":  "healthy",
			"service": serviceName,
			"storage": st.health(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, status)
	})

	r.Route("/api/v1/inventory", func(r chi.Router) {
		handler.Routes(r, inventoryService, log)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("shutting down server")

	// Stop the scheduler before the stores close
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
	return nil
}
