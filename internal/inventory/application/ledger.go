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

	"github.com/orderflow/fulfillment/internal/inventory/domain"
	orderdom "github.com/orderflow/fulfillment/internal/order/domain"
	"github.com/orderflow/fulfillment/pkg/eventbus"
	"github.com/orderflow/fulfillment/pkg/metrics"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrReleaseExceeds  = errors.New("release exceeds reserved quantity")
)

// Ledger holds per-product stock records and serializes reservations per
// product id. Different products never contend on the same lock.
type Ledger struct {
	log    *slog.Logger
	bus    *eventbus.Bus
	tracer trace.Tracer

	// pacing is the artificial per-line processing delay.
	pacing time.Duration

	mu      sync.RWMutex
	records map[string]*domain.Record
	locks   map[string]*sync.Mutex
}

func NewLedger(log *slog.Logger, bus *eventbus.Bus, pacing time.Duration) *Ledger {
	l := &Ledger{
		log:     log,
		bus:     bus,
		tracer:  otel.Tracer("inventory-ledger"),
		pacing:  pacing,
		records: make(map[string]*domain.Record),
		locks:   make(map[string]*sync.Mutex),
	}
	bus.Subscribe(orderdom.EventOrderPlaced, l.handleOrderPlaced)
	return l
}

// AddStock increases the total quantity for a product, creating the record if
// absent, and returns the updated snapshot.
func (l *Ledger) AddStock(productID string, qty int) domain.Record {
	lock := l.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	rec := l.record(productID, true)
	rec.Quantity += qty
	l.log.Info("stock added", "product_id", productID, "quantity", qty, "total", rec.Quantity)
	return *rec
}

// ReleaseStock gives back previously reserved units. It is the compensation
// primitive for cancellation flows and is not exercised by the default saga.
func (l *Ledger) ReleaseStock(productID string, qty int) error {
	lock := l.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	rec := l.record(productID, false)
	if rec == nil {
		return ErrProductNotFound
	}
	if rec.Reserved < qty {
		return ErrReleaseExceeds
	}
	rec.Reserved -= qty
	return nil
}

// Get returns a snapshot of one product's record.
func (l *Ledger) Get(productID string) (domain.Record, error) {
	lock := l.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	rec := l.record(productID, false)
	if rec == nil {
		return domain.Record{}, ErrProductNotFound
	}
	return *rec, nil
}

// reserve attempts to reserve qty units inside the product's critical
// section. It reports whether the full amount was granted and the
// pre-reservation available count, which callers use to decide how much
// could still be partially serviced.
func (l *Ledger) reserve(productID string, qty int) (granted bool, available int) {
	lock := l.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	rec := l.record(productID, false)
	if rec == nil {
		return false, 0
	}

	available = rec.Available()
	if available < qty {
		return false, available
	}
	rec.Reserved += qty
	return true, available
}

// productLock returns the mutex owning productID's critical section,
// creating it on first use.
func (l *Ledger) productLock(productID string) *sync.Mutex {
	l.mu.RLock()
	lock, ok := l.locks[productID]
	l.mu.RUnlock()
	if ok {
		return lock
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lock, ok = l.locks[productID]; !ok {
		lock = &sync.Mutex{}
		l.locks[productID] = lock
	}
	return lock
}

// record must be called with the product's lock held.
func (l *Ledger) record(productID string, create bool) *domain.Record {
	l.mu.RLock()
	rec := l.records[productID]
	l.mu.RUnlock()
	if rec != nil || !create {
		return rec
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if rec = l.records[productID]; rec == nil {
		rec = &domain.Record{ProductID: productID}
		l.records[productID] = rec
	}
	return rec
}

// handleOrderPlaced hands the order off to a goroutine; the bus only needs
// the invocation to have started.
func (l *Ledger) handleOrderPlaced(ctx context.Context, evt eventbus.Event) {
	placed, ok := evt.(orderdom.OrderPlaced)
	if !ok {
		l.log.Error("unexpected event payload", "event", evt.Name())
		return
	}
	// Detach from the caller's cancellation (typically an HTTP request
	// that returns immediately) while keeping trace propagation.
	go l.processOrder(context.WithoutCancel(ctx), placed)
}

// processOrder walks the requested lines strictly in request order, one at a
// time. Every failed line is reported immediately via OutOfStock; the granted
// lines are batched into a single StockReserved published after the loop, so
// all OutOfStock events for an order precede its StockReserved.
func (l *Ledger) processOrder(ctx context.Context, placed orderdom.OrderPlaced) {
	ctx, span := l.tracer.Start(ctx, "ProcessOrderPlaced", trace.WithAttributes(
		attribute.String("order.id", placed.OrderID),
		attribute.Int("order.lines", len(placed.Items)),
	))
	defer span.End()

	granted := make([]orderdom.LineItem, 0, len(placed.Items))

	for _, item := range placed.Items {
		if l.pacing > 0 {
			time.Sleep(l.pacing)
		}

		ok, available := l.tryReserve(item)
		if !ok {
			metrics.Reservations.WithLabelValues("denied").Inc()
			l.log.Info("reservation denied",
				"order_id", placed.OrderID,
				"product_id", item.ProductID,
				"requested", item.Quantity,
				"available", available)
			l.bus.Publish(ctx, domain.OutOfStock{
				OrderID:   placed.OrderID,
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			})
			continue
		}

		metrics.Reservations.WithLabelValues("granted").Inc()
		granted = append(granted, item)
	}

	if len(granted) > 0 {
		l.bus.Publish(ctx, domain.StockReserved{OrderID: placed.OrderID, Items: granted})
	}
}

// tryReserve shields the reservation loop from an unexpected failure in a
// single line: a panic is logged and the line is treated as out of stock so
// the order's completion count cannot get stuck.
func (l *Ledger) tryReserve(item orderdom.LineItem) (granted bool, available int) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("reservation failed", "product_id", item.ProductID, "panic", r)
			granted, available = false, 0
		}
	}()
	return l.reserve(item.ProductID, item.Quantity)
}
