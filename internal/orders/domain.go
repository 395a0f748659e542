package orders

import "time"

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// OrderItem is the consumer-side copy of a line-item snapshot. Values come
// from the order message, never from the live catalog.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// Order is the authoritative fulfillment-side record. It exists only once
// the order message has been consumed, which is why the query surface can
// lag behind intake's pending state.
type Order struct {
	ID        string      `json:"_id"`
	Username  string      `json:"username"`
	Status    string      `json:"status"`
	Items     []OrderItem `json:"products"`
	CreatedAt time.Time   `json:"created_at"`
}
