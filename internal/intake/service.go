package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/HoangTuan-git/action-E-project/internal/catalog"
	"github.com/HoangTuan-git/action-E-project/internal/messaging"
)

var (
	ErrInvalidOrder = errors.New("each line must have a product id and a quantity of at least 1")
	ErrEmptyOrder   = errors.New("order must contain at least one line")
	ErrMissingUser  = errors.New("missing username")
)

// ProductProvider is the slice of the catalog the intake needs: resolving
// product ids into price/name snapshots.
type ProductProvider interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}

// Publisher is the broker surface used by intake.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Service validates buy requests against the catalog, persists a pending
// order and hands it to the broker. A confirmed publish marks the record
// published; an unconfirmed one leaves it for the Republisher.
type Service struct {
	catalog   ProductProvider
	store     OrderStore
	publisher Publisher
	now       func() time.Time
}

func NewService(catalog ProductProvider, store OrderStore, publisher Publisher) *Service {
	return &Service{
		catalog:   catalog,
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateOrder runs all validation before any side effect: a rejected
// request persists nothing and publishes nothing. On success the order is
// returned with status pending; visibility through the orders service is
// eventual (see the consumer).
func (s *Service) CreateOrder(ctx context.Context, lines []LineRequest, username string) (*Order, error) {
	if username == "" {
		return nil, ErrMissingUser
	}
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 {
			return nil, ErrInvalidOrder
		}
	}

	// Resolve every line against the catalog first; any unknown product
	// fails the whole order, no partial orders.
	items := make([]messaging.LineItem, 0, len(lines))
	for _, line := range lines {
		p, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, catalog.ErrProductNotFound)
			}
			return nil, fmt.Errorf("failed to resolve product %s: %w", line.ProductID, err)
		}
		items = append(items, messaging.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
		})
	}

	order := &Order{
		ID:        uuid.NewString(),
		Username:  username,
		LineItems: items,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.CreatePending(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist pending order: %w", err)
	}

	// The local pending record is durable at this point. A failed publish
	// must not fail the sale; the republisher retries it.
	if err := s.publishOrder(ctx, order); err != nil {
		log.Printf("publish for order %s not confirmed, leaving for republisher: %v", order.ID, err)
		return order, nil
	}

	if err := s.store.MarkPublished(ctx, order.ID); err != nil {
		log.Printf("failed to mark order %s published: %v", order.ID, err)
	}

	return order, nil
}

// FailOrder moves a pending order to its terminal failed state. This is
// the hook for out-of-band rejections reported back to intake, such as
// an operator voiding a sale the consumer never processed. Terminal
// orders are left untouched and reported as ErrOrderNotFound.
func (s *Service) FailOrder(ctx context.Context, orderID string) error {
	if err := s.store.MarkFailed(ctx, orderID); err != nil {
		return fmt.Errorf("failed to mark order %s as failed: %w", orderID, err)
	}
	return nil
}

func (s *Service) publishOrder(ctx context.Context, order *Order) error {
	event := messaging.OrderCreatedEvent{
		Event:     messaging.EventOrderCreated,
		OrderID:   order.ID,
		Username:  order.Username,
		LineItems: order.LineItems,
		CreatedAt: order.CreatedAt,
		EmittedAt: s.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	return s.publisher.Publish(ctx, order.ID, payload)
}
