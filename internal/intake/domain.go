package intake

import (
	"time"

	"github.com/HoangTuan-git/action-E-project/internal/messaging"
)

// Order statuses on the intake side. An order is created pending and only
// ever leaves that state for a terminal one: the consumer promotes it to
// completed through its own store, and intake alone may mark it failed
// when a downstream rejection is surfaced out of band.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// LineRequest is one line of a buy request. The `_id` json tag matches
// the public API body shape.
type LineRequest struct {
	ProductID string `json:"_id"`
	Quantity  int    `json:"quantity"`
}

// Order is the intake-side record of an accepted sale. LineItems are
// immutable snapshots; catalog price changes never touch them.
type Order struct {
	ID        string               `json:"_id"`
	Username  string               `json:"username"`
	LineItems []messaging.LineItem `json:"line_items"`
	Status    string               `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}
