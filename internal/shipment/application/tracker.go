package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	orderdom "github.com/orderflow/fulfillment/internal/order/domain"
	"github.com/orderflow/fulfillment/internal/shipment/domain"
	"github.com/orderflow/fulfillment/pkg/eventbus"
	"github.com/orderflow/fulfillment/pkg/metrics"
)

var ErrShipmentNotFound = errors.New("no shipment for order")

// Tracker materializes shipment lines for completed orders and advances each
// line through pending -> shipped -> delivered on its own timer. Lines
// progress independently; there is no ordering between lines or orders.
type Tracker struct {
	log    *slog.Logger
	bus    *eventbus.Bus
	tracer trace.Tracer

	shipDelay     time.Duration
	deliveryDelay time.Duration

	mu        sync.RWMutex
	shipments map[string][]*domain.Line
}

func NewTracker(log *slog.Logger, bus *eventbus.Bus, shipDelay, deliveryDelay time.Duration) *Tracker {
	t := &Tracker{
		log:           log,
		bus:           bus,
		tracer:        otel.Tracer("shipment-tracker"),
		shipDelay:     shipDelay,
		deliveryDelay: deliveryDelay,
		shipments:     make(map[string][]*domain.Line),
	}
	bus.Subscribe(orderdom.EventReadyForShipping, t.handleReadyForShipping)
	return t
}

// GetShipments returns the current snapshot of an order's lines, possibly
// still pending or shipped.
func (t *Tracker) GetShipments(ctx context.Context, orderID string) ([]domain.Line, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lines, ok := t.shipments[orderID]
	if !ok {
		return nil, ErrShipmentNotFound
	}

	out := make([]domain.Line, len(lines))
	for i, ln := range lines {
		out[i] = *ln
	}
	return out, nil
}

func (t *Tracker) handleReadyForShipping(ctx context.Context, evt eventbus.Event) {
	ready, ok := evt.(orderdom.ReadyForShipping)
	if !ok {
		t.log.Error("unexpected event payload", "event", evt.Name())
		return
	}

	_, span := t.tracer.Start(ctx, "ShipOrder", trace.WithAttributes(
		attribute.String("order.id", ready.OrderID),
		attribute.Int("shipment.lines", len(ready.Items)),
	))
	defer span.End()

	lines := make([]*domain.Line, 0, len(ready.Items))
	for _, item := range ready.Items {
		lines = append(lines, &domain.Line{
			OrderID:   ready.OrderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Status:    domain.LinePending,
			UpdatedAt: time.Now().UTC(),
		})
	}

	t.mu.Lock()
	t.shipments[ready.OrderID] = append(t.shipments[ready.OrderID], lines...)
	t.mu.Unlock()

	t.log.Info("shipment batch created", "order_id", ready.OrderID, "lines", len(lines))

	for _, ln := range lines {
		go t.advance(ctx, ln)
	}
}

// advance walks one line through its two transitions, emitting a milestone
// event after each. Context cancellation stops the simulation mid-flight.
func (t *Tracker) advance(ctx context.Context, ln *domain.Line) {
	if !t.wait(ctx, t.shipDelay) {
		return
	}
	t.transition(ln, domain.LineShipped)
	t.bus.Publish(ctx, domain.ItemShipped{
		OrderID:   ln.OrderID,
		ProductID: ln.ProductID,
		Quantity:  ln.Quantity,
	})

	if !t.wait(ctx, t.deliveryDelay) {
		return
	}
	t.transition(ln, domain.LineDelivered)
	t.bus.Publish(ctx, domain.ItemDelivered{
		OrderID:   ln.OrderID,
		ProductID: ln.ProductID,
		Quantity:  ln.Quantity,
	})
}

func (t *Tracker) transition(ln *domain.Line, status domain.LineStatus) {
	t.mu.Lock()
	ln.Status = status
	ln.UpdatedAt = time.Now().UTC()
	t.mu.Unlock()

	metrics.ShipmentLines.WithLabelValues(string(status)).Inc()
	t.log.Info("shipment line advanced",
		"order_id", ln.OrderID, "product_id", ln.ProductID, "status", status)
}

func (t *Tracker) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
