package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/fulfillment/internal/shipment/application"
)

type Handler struct {
	log     *slog.Logger
	tracker *application.Tracker
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, tracker *application.Tracker) *Handler {
	return &Handler{
		log:     log,
		tracker: tracker,
		tracer:  otel.Tracer("shipment-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{orderId}", h.getShipments)

	return r
}

func (h *Handler) getShipments(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetShipments")
	defer span.End()

	lines, err := h.tracker.GetShipments(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		if errors.Is(err, application.ErrShipmentNotFound) {
			http.Error(w, "no shipment for order", http.StatusNotFound)
			return
		}
		h.log.Error("get shipments failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(lines)
}
