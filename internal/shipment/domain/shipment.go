package domain

import "time"

type LineStatus string

const (
	LinePending   LineStatus = "pending"
	LineShipped   LineStatus = "shipped"
	LineDelivered LineStatus = "delivered"
)

// Line is one shipped item of an order, identified by (order, product) within
// its batch. Only the shipment tracker mutates it.
type Line struct {
	OrderID   string     `json:"orderId"`
	ProductID string     `json:"productId"`
	Quantity  int        `json:"quantity"`
	Status    LineStatus `json:"status"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
