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

	orderdom "github.com/orderflow/fulfillment/internal/order/domain"
	"github.com/orderflow/fulfillment/internal/shipment/domain"
	"github.com/orderflow/fulfillment/pkg/eventbus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetShipmentsUnknownOrder(t *testing.T) {
	bus := eventbus.New(testLogger())
	tracker := NewTracker(testLogger(), bus, time.Millisecond, time.Millisecond)

	_, err := tracker.GetShipments(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrShipmentNotFound)
}

func TestReadyForShippingMaterializesPendingLines(t *testing.T) {
	bus := eventbus.New(testLogger())
	// Long delays keep the lines observable in pending.
	tracker := NewTracker(testLogger(), bus, time.Minute, time.Minute)

	bus.Publish(context.Background(), orderdom.ReadyForShipping{
		OrderID: "order-1",
		Items: []orderdom.LineItem{
			{ProductID: "PROD-1", Quantity: 2},
			{ProductID: "PROD-2", Quantity: 1},
		},
	})

	lines, err := tracker.GetShipments(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, ln := range lines {
		assert.Equal(t, "order-1", ln.OrderID)
		assert.Equal(t, domain.LinePending, ln.Status)
	}
	assert.Equal(t, "PROD-1", lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestLinesAdvanceToDeliveredWithMilestoneEvents(t *testing.T) {
	bus := eventbus.New(testLogger())
	tracker := NewTracker(testLogger(), bus, time.Millisecond, time.Millisecond)

	var mu sync.Mutex
	shipped := map[string]int{}
	delivered := map[string]int{}
	bus.Subscribe(domain.EventItemShipped, func(_ context.Context, evt eventbus.Event) {
		e := evt.(domain.ItemShipped)
		mu.Lock()
		shipped[e.ProductID] = e.Quantity
		mu.Unlock()
	})
	bus.Subscribe(domain.EventItemDelivered, func(_ context.Context, evt eventbus.Event) {
		e := evt.(domain.ItemDelivered)
		mu.Lock()
		delivered[e.ProductID] = e.Quantity
		mu.Unlock()
	})

	bus.Publish(context.Background(), orderdom.ReadyForShipping{
		OrderID: "order-1",
		Items: []orderdom.LineItem{
			{ProductID: "PROD-1", Quantity: 2},
			{ProductID: "PROD-2", Quantity: 1},
		},
	})

	require.Eventually(t, func() bool {
		lines, err := tracker.GetShipments(context.Background(), "order-1")
		if err != nil {
			return false
		}
		for _, ln := range lines {
			if ln.Status != domain.LineDelivered {
				return false
			}
		}
		return true
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"PROD-1": 2, "PROD-2": 1}, shipped)
	assert.Equal(t, map[string]int{"PROD-1": 2, "PROD-2": 1}, delivered)
}

func TestContextCancellationStopsProgression(t *testing.T) {
	bus := eventbus.New(testLogger())
	tracker := NewTracker(testLogger(), bus, 50*time.Millisecond, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, orderdom.ReadyForShipping{
		OrderID: "order-1",
		Items:   []orderdom.LineItem{{ProductID: "PROD-1", Quantity: 1}},
	})

	time.Sleep(120 * time.Millisecond)
	lines, err := tracker.GetShipments(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LinePending, lines[0].Status)
}
