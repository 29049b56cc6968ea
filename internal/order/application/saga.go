package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	invdom "github.com/orderflow/fulfillment/internal/inventory/domain"
	"github.com/orderflow/fulfillment/internal/order/domain"
	"github.com/orderflow/fulfillment/pkg/eventbus"
	"github.com/orderflow/fulfillment/pkg/metrics"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyOrder    = errors.New("order has no items")
	ErrInvalidItem   = errors.New("order item needs a product id and a positive quantity")
)

// orderState pairs an order with its saga bookkeeping. processed counts
// original requested lines that have been accounted for; a line that splits
// into a fulfillable and an unfulfillable record still counts once.
type orderState struct {
	mu        sync.Mutex
	order     domain.Order
	processed int
}

// Saga owns the order lifecycle: it creates orders, publishes their placement
// and drives each order from processing to a terminal status off the
// reservation outcome events. Each order has a single writer (its state
// mutex), so concurrent orders never interfere.
type Saga struct {
	log    *slog.Logger
	bus    *eventbus.Bus
	tracer trace.Tracer

	mu     sync.RWMutex
	orders map[string]*orderState
}

func NewSaga(log *slog.Logger, bus *eventbus.Bus) *Saga {
	s := &Saga{
		log:    log,
		bus:    bus,
		tracer: otel.Tracer("order-saga"),
		orders: make(map[string]*orderState),
	}
	bus.Subscribe(invdom.EventStockReserved, s.handleStockReserved)
	bus.Subscribe(invdom.EventOutOfStock, s.handleOutOfStock)
	return s
}

// CreateOrder stores the order, publishes OrderPlaced and reports the order
// as processing. Reservation handling may already be running concurrently by
// the time this returns, so the processing transition never overwrites a
// terminal status.
func (s *Saga) CreateOrder(ctx context.Context, items []domain.LineItem) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder")
	defer span.End()

	if len(items) == 0 {
		return domain.Order{}, ErrEmptyOrder
	}
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return domain.Order{}, ErrInvalidItem
		}
	}

	st := &orderState{order: domain.NewOrder(uuid.NewString(), items)}
	span.SetAttributes(attribute.String("order.id", st.order.ID))

	s.mu.Lock()
	s.orders[st.order.ID] = st
	s.mu.Unlock()

	metrics.OrdersCreated.Inc()
	s.log.Info("order placed", "order_id", st.order.ID, "lines", len(items))
	s.bus.Publish(ctx, domain.OrderPlaced{OrderID: st.order.ID, Items: st.order.Items})

	st.mu.Lock()
	if st.order.Status == domain.StatusPending {
		st.order.Status = domain.StatusProcessing
		st.order.UpdatedAt = time.Now().UTC()
	}
	snapshot := st.order.Snapshot()
	st.mu.Unlock()

	return snapshot, nil
}

// GetOrder returns a snapshot of the order.
func (s *Saga) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	st := s.state(id)
	if st == nil {
		return domain.Order{}, ErrOrderNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.order.Snapshot(), nil
}

func (s *Saga) state(id string) *orderState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders[id]
}

func (s *Saga) handleStockReserved(ctx context.Context, evt eventbus.Event) {
	reserved, ok := evt.(invdom.StockReserved)
	if !ok {
		s.log.Error("unexpected event payload", "event", evt.Name())
		return
	}

	st := s.state(reserved.OrderID)
	if st == nil {
		s.log.Warn("stock reserved for unknown order", "order_id", reserved.OrderID)
		return
	}

	st.mu.Lock()
	if st.order.Status.Terminal() {
		st.mu.Unlock()
		s.log.Warn("event after terminal status ignored",
			"order_id", reserved.OrderID, "event", evt.Name())
		return
	}

	st.order.Fulfillable = append(st.order.Fulfillable, reserved.Items...)
	st.processed += len(reserved.Items)
	st.order.UpdatedAt = time.Now().UTC()
	ready := s.finalizeLocked(st)
	st.mu.Unlock()

	s.publishReady(ctx, ready)
}

func (s *Saga) handleOutOfStock(ctx context.Context, evt eventbus.Event) {
	oos, ok := evt.(invdom.OutOfStock)
	if !ok {
		s.log.Error("unexpected event payload", "event", evt.Name())
		return
	}

	st := s.state(oos.OrderID)
	if st == nil {
		s.log.Warn("out of stock for unknown order", "order_id", oos.OrderID)
		return
	}

	st.mu.Lock()
	if st.order.Status.Terminal() {
		st.mu.Unlock()
		s.log.Warn("event after terminal status ignored",
			"order_id", oos.OrderID, "event", evt.Name())
		return
	}

	st.order.Unfulfillable = append(st.order.Unfulfillable, domain.LineItem{
		ProductID: oos.ProductID,
		Quantity:  oos.Requested - oos.Available,
	})
	// The ledger never grants partial amounts; taking whatever was still
	// available is this saga's call.
	if oos.Available > 0 {
		st.order.Fulfillable = append(st.order.Fulfillable, domain.LineItem{
			ProductID: oos.ProductID,
			Quantity:  oos.Available,
		})
	}
	st.processed++
	st.order.UpdatedAt = time.Now().UTC()
	ready := s.finalizeLocked(st)
	st.mu.Unlock()

	s.publishReady(ctx, ready)
}

// finalizeLocked checks completion and performs the terminal transition.
// Completion counts processed requested lines, not outcome records, so a
// partially satisfiable line (which lands in both lists) cannot skew the
// denominator. Must be called with st.mu held; returns the ReadyForShipping
// event to publish after unlocking, if any.
func (s *Saga) finalizeLocked(st *orderState) *domain.ReadyForShipping {
	if st.processed != len(st.order.Items) {
		return nil
	}

	var ready *domain.ReadyForShipping
	switch {
	case len(st.order.Unfulfillable) == 0:
		st.order.Status = domain.StatusFulfilled
	case len(st.order.Fulfillable) > 0:
		st.order.Status = domain.StatusPartial
	default:
		st.order.Status = domain.StatusCancelled
	}
	st.order.UpdatedAt = time.Now().UTC()

	if len(st.order.Fulfillable) > 0 {
		items := st.order.Snapshot().Fulfillable
		ready = &domain.ReadyForShipping{OrderID: st.order.ID, Items: items}
	}

	metrics.OrdersCompleted.WithLabelValues(string(st.order.Status)).Inc()
	s.log.Info("order completed",
		"order_id", st.order.ID,
		"status", st.order.Status,
		"fulfillable", len(st.order.Fulfillable),
		"unfulfillable", len(st.order.Unfulfillable))
	return ready
}

func (s *Saga) publishReady(ctx context.Context, ready *domain.ReadyForShipping) {
	if ready == nil {
		return
	}
	s.bus.Publish(ctx, *ready)
}
