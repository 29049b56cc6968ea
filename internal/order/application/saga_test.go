package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invapp "github.com/orderflow/fulfillment/internal/inventory/application"
	invdom "github.com/orderflow/fulfillment/internal/inventory/domain"
	"github.com/orderflow/fulfillment/internal/order/domain"
	shipapp "github.com/orderflow/fulfillment/internal/shipment/application"
	shipdom "github.com/orderflow/fulfillment/internal/shipment/domain"
	"github.com/orderflow/fulfillment/pkg/eventbus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	bus     *eventbus.Bus
	ledger  *invapp.Ledger
	saga    *Saga
	tracker *shipapp.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := eventbus.New(testLogger())
	return &fixture{
		bus:     bus,
		ledger:  invapp.NewLedger(testLogger(), bus, 0),
		saga:    NewSaga(testLogger(), bus),
		tracker: shipapp.NewTracker(testLogger(), bus, time.Millisecond, time.Millisecond),
	}
}

func (f *fixture) awaitTerminal(t *testing.T, orderID string) domain.Order {
	t.Helper()
	var got domain.Order
	require.Eventually(t, func() bool {
		o, err := f.saga.GetOrder(context.Background(), orderID)
		if err != nil {
			return false
		}
		got = o
		return o.Status.Terminal()
	}, 2*time.Second, time.Millisecond)
	return got
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.saga.CreateOrder(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = f.saga.CreateOrder(context.Background(), []domain.LineItem{{ProductID: "", Quantity: 1}})
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = f.saga.CreateOrder(context.Background(), []domain.LineItem{{ProductID: "PROD-1", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestCreateOrderReturnsProcessingNotPending(t *testing.T) {
	// No ledger subscribed: the order can never complete, so the snapshot
	// returned by CreateOrder must read processing.
	bus := eventbus.New(testLogger())
	saga := NewSaga(testLogger(), bus)

	o, err := saga.CreateOrder(context.Background(), []domain.LineItem{{ProductID: "PROD-1", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, o.Status)
	assert.NotEmpty(t, o.ID)
}

func TestGetOrderUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.saga.GetOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// Scenario: every line satisfiable -> fulfilled, stock reserved per line and
// every shipment line eventually delivered.
func TestFullyFulfilledOrder(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddStock("PROD-1", 10)
	f.ledger.AddStock("PROD-2", 5)

	o, err := f.saga.CreateOrder(context.Background(), []domain.LineItem{
		{ProductID: "PROD-1", Quantity: 2},
		{ProductID: "PROD-2", Quantity: 1},
	})
	require.NoError(t, err)

	got := f.awaitTerminal(t, o.ID)
	assert.Equal(t, domain.StatusFulfilled, got.Status)
	assert.Equal(t, o.Items, got.Fulfillable)
	assert.Empty(t, got.Unfulfillable)

	rec, err := f.ledger.Get("PROD-1")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Reserved)
	rec, err = f.ledger.Get("PROD-2")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Reserved)

	require.Eventually(t, func() bool {
		lines, err := f.tracker.GetShipments(context.Background(), o.ID)
		if err != nil || len(lines) != 2 {
			return false
		}
		for _, ln := range lines {
			if ln.Status != shipdom.LineDelivered {
				return false
			}
		}
		return true
	}, 2*time.Second, time.Millisecond)
}

// Scenario: one line only partially satisfiable -> partial, with the split
// line contributing to both accounting lists but counting as one processed
// requested line.
func TestPartiallyFulfilledOrder(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddStock("PROD-2", 5)
	f.ledger.AddStock("PROD-3", 15)

	o, err := f.saga.CreateOrder(context.Background(), []domain.LineItem{
		{ProductID: "PROD-2", Quantity: 7},
		{ProductID: "PROD-3", Quantity: 3},
	})
	require.NoError(t, err)

	got := f.awaitTerminal(t, o.ID)
	assert.Equal(t, domain.StatusPartial, got.Status)
	assert.Equal(t, []domain.LineItem{
		{ProductID: "PROD-2", Quantity: 5},
		{ProductID: "PROD-3", Quantity: 3},
	}, got.Fulfillable)
	assert.Equal(t, []domain.LineItem{
		{ProductID: "PROD-2", Quantity: 2},
	}, got.Unfulfillable)

	require.Eventually(t, func() bool {
		lines, err := f.tracker.GetShipments(context.Background(), o.ID)
		return err == nil && len(lines) == 2
	}, 2*time.Second, time.Millisecond)

	lines, err := f.tracker.GetShipments(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "PROD-2", lines[0].ProductID)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, "PROD-3", lines[1].ProductID)
	assert.Equal(t, 3, lines[1].Quantity)
}

// Scenario: nothing satisfiable -> cancelled, and no shipping handoff.
func TestCancelledOrder(t *testing.T) {
	f := newFixture(t)

	shipped := make(chan struct{}, 1)
	f.bus.Subscribe(domain.EventReadyForShipping, func(context.Context, eventbus.Event) {
		shipped <- struct{}{}
	})

	o, err := f.saga.CreateOrder(context.Background(), []domain.LineItem{
		{ProductID: "PROD-404", Quantity: 3},
	})
	require.NoError(t, err)

	got := f.awaitTerminal(t, o.ID)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Empty(t, got.Fulfillable)
	assert.Equal(t, []domain.LineItem{{ProductID: "PROD-404", Quantity: 3}}, got.Unfulfillable)

	select {
	case <-shipped:
		t.Fatal("ReadyForShipping published for a cancelled order")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = f.tracker.GetShipments(context.Background(), o.ID)
	assert.ErrorIs(t, err, shipapp.ErrShipmentNotFound)
}

// Scenario: two concurrent orders contend for the same product; the combined
// grant never exceeds the stock and at most one order can be fully fulfilled.
func TestConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddStock("PROD-1", 10)

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i, qty := range []int{7, 5} {
		wg.Add(1)
		go func(i, qty int) {
			defer wg.Done()
			o, err := f.saga.CreateOrder(context.Background(), []domain.LineItem{
				{ProductID: "PROD-1", Quantity: qty},
			})
			ids[i], errs[i] = o.ID, err
		}(i, qty)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	first := f.awaitTerminal(t, ids[0])
	second := f.awaitTerminal(t, ids[1])

	rec, err := f.ledger.Get("PROD-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.Reserved, rec.Quantity)

	fulfilled := 0
	for _, o := range []domain.Order{first, second} {
		if o.Status == domain.StatusFulfilled {
			fulfilled++
		} else {
			assert.Contains(t, []domain.OrderStatus{domain.StatusPartial, domain.StatusCancelled}, o.Status)
		}
	}
	assert.LessOrEqual(t, fulfilled, 1)
}

// Once terminal, later events for the order must not change anything.
func TestTerminalStatusIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddStock("PROD-1", 10)

	o, err := f.saga.CreateOrder(context.Background(), []domain.LineItem{
		{ProductID: "PROD-1", Quantity: 2},
	})
	require.NoError(t, err)
	got := f.awaitTerminal(t, o.ID)
	require.Equal(t, domain.StatusFulfilled, got.Status)

	f.bus.Publish(context.Background(), invdom.OutOfStock{
		OrderID: o.ID, ProductID: "PROD-1", Requested: 2, Available: 0,
	})
	f.bus.Publish(context.Background(), invdom.StockReserved{
		OrderID: o.ID,
		Items:   []domain.LineItem{{ProductID: "PROD-1", Quantity: 2}},
	})

	after, err := f.saga.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Status, after.Status)
	assert.Equal(t, got.Fulfillable, after.Fulfillable)
	assert.Equal(t, got.Unfulfillable, after.Unfulfillable)
}

// Events for unknown orders are dropped without side effects.
func TestEventsForUnknownOrderIgnored(t *testing.T) {
	f := newFixture(t)

	assert.NotPanics(t, func() {
		f.bus.Publish(context.Background(), invdom.StockReserved{
			OrderID: "ghost",
			Items:   []domain.LineItem{{ProductID: "PROD-1", Quantity: 1}},
		})
		f.bus.Publish(context.Background(), invdom.OutOfStock{
			OrderID: "ghost", ProductID: "PROD-1", Requested: 1, Available: 0,
		})
	})
}

// A duplicated product across two requested lines is tracked per line, not
// merged: each line reserves on its own.
func TestDuplicateProductLinesAreNotMerged(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddStock("PROD-1", 5)

	o, err := f.saga.CreateOrder(context.Background(), []domain.LineItem{
		{ProductID: "PROD-1", Quantity: 3},
		{ProductID: "PROD-1", Quantity: 3},
	})
	require.NoError(t, err)

	got := f.awaitTerminal(t, o.ID)
	assert.Equal(t, domain.StatusPartial, got.Status)
	// First line granted in full, second split into 2 available + 1 short.
	assert.Equal(t, []domain.LineItem{
		{ProductID: "PROD-1", Quantity: 2},
		{ProductID: "PROD-1", Quantity: 3},
	}, got.Fulfillable)
	assert.Equal(t, []domain.LineItem{
		{ProductID: "PROD-1", Quantity: 1},
	}, got.Unfulfillable)
}
