package domain

import (
	"slices"
	"time"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusFulfilled  OrderStatus = "fulfilled"
	StatusPartial    OrderStatus = "partial"
	StatusCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether no further status transition may occur.
func (s OrderStatus) Terminal() bool {
	return s == StatusFulfilled || s == StatusPartial || s == StatusCancelled
}

// LineItem is one (product, quantity) entry. Duplicate products across lines
// are allowed and are never merged.
type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID            string      `json:"id"`
	Items         []LineItem  `json:"items"`
	Status        OrderStatus `json:"status"`
	Fulfillable   []LineItem  `json:"fulfillable"`
	Unfulfillable []LineItem  `json:"unfulfillable"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func NewOrder(id string, items []LineItem) Order {
	now := time.Now().UTC()
	return Order{
		ID:        id,
		Items:     slices.Clone(items),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot returns a copy safe to hand outside the saga while handlers keep
// mutating the original.
func (o Order) Snapshot() Order {
	o.Items = slices.Clone(o.Items)
	o.Fulfillable = slices.Clone(o.Fulfillable)
	o.Unfulfillable = slices.Clone(o.Unfulfillable)
	return o
}
