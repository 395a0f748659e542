// Package messaging defines the wire contract for order events exchanged
// between the product service (intake) and the orders service (consumer).
package messaging

import "time"

// Event type constants for order domain events.
const (
	EventOrderCreated = "order.created"
)

// Topic names. OrdersTopic carries OrderCreatedEvent envelopes; messages
// that permanently fail processing end up on OrdersDLQTopic.
const (
	OrdersTopic    = "orders"
	OrdersDLQTopic = "orders.dlq"
)

// LineItem is a snapshot of a catalog product taken at order-creation
// time. Name and UnitPrice are frozen copies: later catalog changes must
// never alter an already-created order.
type LineItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// OrderCreatedEvent is the envelope published to the orders topic for
// every order accepted by intake. It is an immutable value and may be
// delivered to consumers more than once. CreatedAt is when intake
// accepted the order; EmittedAt is when this envelope was published,
// which is later for republished orders.
type OrderCreatedEvent struct {
	Event     string     `json:"event"`
	OrderID   string     `json:"order_id"`
	Username  string     `json:"username"`
	LineItems []LineItem `json:"line_items"`
	CreatedAt time.Time  `json:"created_at"`
	EmittedAt time.Time  `json:"emitted_at"`
}
