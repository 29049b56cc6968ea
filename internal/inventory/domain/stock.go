package domain

// Record tracks stock for one product. Reserved never exceeds Quantity and
// never goes negative; both are enforced inside the ledger's per-product
// critical section.
type Record struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Reserved  int    `json:"reserved"`
}

// Available is the quantity still open for reservation.
func (r Record) Available() int {
	return r.Quantity - r.Reserved
}
