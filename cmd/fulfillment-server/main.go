package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orderflow/fulfillment/pkg/config"
	"github.com/orderflow/fulfillment/pkg/eventbus"
	"github.com/orderflow/fulfillment/pkg/logging"
	"github.com/orderflow/fulfillment/pkg/metrics"
	"github.com/orderflow/fulfillment/pkg/shutdown"
	"github.com/orderflow/fulfillment/pkg/tracing"

	inventoryapp "github.com/orderflow/fulfillment/internal/inventory/application"
	inventoryhttp "github.com/orderflow/fulfillment/internal/inventory/infrastructure/http"
	orderapp "github.com/orderflow/fulfillment/internal/order/application"
	orderhttp "github.com/orderflow/fulfillment/internal/order/infrastructure/http"
	shipmentapp "github.com/orderflow/fulfillment/internal/shipment/application"
	shipmenthttp "github.com/orderflow/fulfillment/internal/shipment/infrastructure/http"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, "fulfillment-server", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// One bus instance wires the three services together; each subscribes
	// to the events it consumes at construction.
	bus := eventbus.New(log)
	ledger := inventoryapp.NewLedger(log, bus, cfg.ReservationDelay)
	saga := orderapp.NewSaga(log, bus)
	tracker := shipmentapp.NewTracker(log, bus, cfg.ShipDelay, cfg.DeliveryDelay)

	r := chi.NewRouter()
	r.Mount("/orders", orderhttp.NewHandler(log, saga).Routes())
	r.Mount("/inventory", inventoryhttp.NewHandler(log, ledger).Routes())
	r.Mount("/shipments", shipmenthttp.NewHandler(log, tracker).Routes())
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("fulfillment-server shutdown complete")
}
