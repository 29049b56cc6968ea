package domain

const (
	EventOrderPlaced      = "OrderPlaced"
	EventReadyForShipping = "ReadyForShipping"
)

// OrderPlaced is published once per created order, before the saga reports
// the order as processing.
type OrderPlaced struct {
	OrderID string
	Items   []LineItem
}

func (OrderPlaced) Name() string { return EventOrderPlaced }

// ReadyForShipping carries every fulfillable line of a completed order. It is
// published at most once per order.
type ReadyForShipping struct {
	OrderID string
	Items   []LineItem
}

func (ReadyForShipping) Name() string { return EventReadyForShipping }
