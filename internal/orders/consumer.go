package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/HoangTuan-git/action-E-project/internal/broker"
	"github.com/HoangTuan-git/action-E-project/internal/messaging"
)

// Consumer turns delivered order messages into persisted orders. It is
// the component that converts at-least-once delivery into exactly-one
// persisted order per order id.
type Consumer struct {
	repo OrderRepository
}

func NewConsumer(repo OrderRepository) *Consumer {
	return &Consumer{repo: repo}
}

// HandleOrderCreated processes one delivery of an OrderCreatedEvent.
// A malformed payload is a permanent failure (dead-letter, no retry); a
// storage failure is transient (requeue); a duplicate order id is the
// idempotent no-op path and acknowledges the message.
func (c *Consumer) HandleOrderCreated(ctx context.Context, payload []byte) error {
	var event messaging.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return broker.Permanent(fmt.Errorf("invalid order message: %w", err))
	}
	if event.OrderID == "" || event.Username == "" || len(event.LineItems) == 0 {
		return broker.Permanent(fmt.Errorf("order message missing required fields: %s", payload))
	}
	for _, item := range event.LineItems {
		if item.ProductID == "" || item.Quantity < 1 || item.UnitPrice < 0 {
			return broker.Permanent(fmt.Errorf("order %s has an invalid line item: %+v", event.OrderID, item))
		}
	}

	items := make([]OrderItem, len(event.LineItems))
	for i, item := range event.LineItems {
		items[i] = OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}

	// Republished envelopes carry a later EmittedAt; the order keeps its
	// intake-side creation time.
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = event.EmittedAt
	}

	order := &Order{
		ID:        event.OrderID,
		Username:  event.Username,
		Status:    StatusCompleted,
		Items:     items,
		CreatedAt: createdAt,
	}

	if err := c.repo.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			log.Printf("order %s already exists, skipping duplicate delivery", event.OrderID)
			return nil
		}
		return fmt.Errorf("failed to create order %s: %w", event.OrderID, err)
	}

	log.Printf("order %s persisted for user %s", order.ID, order.Username)
	return nil
}
