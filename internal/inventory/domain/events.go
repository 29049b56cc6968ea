package domain

import orderdom "github.com/orderflow/fulfillment/internal/order/domain"

const (
	EventStockReserved = "StockReserved"
	EventOutOfStock    = "OutOfStock"
)

// StockReserved carries every fully granted line of one order. The ledger
// publishes it at most once per order, after all lines were processed, so it
// is always observed after any OutOfStock events for the same order.
type StockReserved struct {
	OrderID string
	Items   []orderdom.LineItem
}

func (StockReserved) Name() string { return EventStockReserved }

// OutOfStock reports one requested line that could not be reserved in full.
// Available is the pre-reservation amount; the ledger never grants a partial
// quantity itself, that decision belongs to the consumer.
type OutOfStock struct {
	OrderID   string
	ProductID string
	Requested int
	Available int
}

func (OutOfStock) Name() string { return EventOutOfStock }
