package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/fulfillment/internal/inventory/application"
)

type Handler struct {
	log    *slog.Logger
	ledger *application.Ledger
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, ledger *application.Ledger) *Handler {
	return &Handler{
		log:    log,
		ledger: ledger,
		tracer: otel.Tracer("inventory-http"),
	}
}

type addStockReq struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{productId}", h.getProduct)
	r.Post("/{productId}/stock", h.addStock)

	return r
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "GetInventory")
	defer span.End()

	rec, err := h.ledger.Get(chi.URLParam(r, "productId"))
	if err != nil {
		if errors.Is(err, application.ErrProductNotFound) {
			http.Error(w, "product not found", http.StatusNotFound)
			return
		}
		h.log.Error("get inventory failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "AddStock")
	defer span.End()

	var req addStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity <= 0 {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rec := h.ledger.AddStock(chi.URLParam(r, "productId"), req.Quantity)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}
