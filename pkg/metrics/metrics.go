package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_events_published_total",
		Help: "Domain events published on the in-process bus, by event name",
	}, []string{"event"})

	OrdersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_created_total",
		Help: "Orders accepted by the order saga",
	})

	OrdersCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_orders_completed_total",
		Help: "Orders that reached a terminal status, by status",
	}, []string{"status"})

	Reservations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_reservations_total",
		Help: "Stock reservation attempts, by outcome (granted/denied)",
	}, []string{"outcome"})

	ShipmentLines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_shipment_lines_total",
		Help: "Shipment line transitions, by status (shipped/delivered)",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(EventsPublished, OrdersCreated, OrdersCompleted, Reservations, ShipmentLines)
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
