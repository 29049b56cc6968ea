package domain

const (
	EventItemShipped   = "ItemShipped"
	EventItemDelivered = "ItemDelivered"
)

type ItemShipped struct {
	OrderID   string
	ProductID string
	Quantity  int
}

func (ItemShipped) Name() string { return EventItemShipped }

type ItemDelivered struct {
	OrderID   string
	ProductID string
	Quantity  int
}

func (ItemDelivered) Name() string { return EventItemDelivered }
