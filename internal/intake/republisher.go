package intake

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/HoangTuan-git/action-E-project/internal/messaging"
)

// Republisher periodically retries pending orders whose publish was never
// confirmed, so a transient broker outage cannot lose a sale. It is the
// reconciliation half of the intake's publish path.
type Republisher struct {
	tick      time.Duration
	batchSize int
	store     OrderStore
	publisher Publisher
	now       func() time.Time
}

func NewRepublisher(store OrderStore, publisher Publisher) *Republisher {
	return &Republisher{
		tick:      5 * time.Second,
		batchSize: 100,
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

func (r *Republisher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.processUnpublished(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Republisher) processUnpublished(ctx context.Context) {
	orders, err := r.store.ListUnpublished(ctx, r.batchSize)
	if err != nil {
		log.Printf("failed to fetch unpublished orders: %v", err)
		return
	}

	for _, order := range orders {
		event := messaging.OrderCreatedEvent{
			Event:     messaging.EventOrderCreated,
			OrderID:   order.ID,
			Username:  order.Username,
			LineItems: order.LineItems,
			CreatedAt: order.CreatedAt,
			EmittedAt: r.now().UTC(),
		}
		payload, errMarshal := json.Marshal(event)
		if errMarshal != nil {
			log.Printf("failed to marshal event for order %v: %v", order.ID, errMarshal)
			continue
		}

		if errPublish := r.publisher.Publish(ctx, order.ID, payload); errPublish != nil {
			// Still unreachable; the next tick tries again. Consumers
			// deduplicate by order id, so an extra delivery is harmless.
			log.Printf("failed to republish order %v: %v", order.ID, errPublish)
			continue
		}

		if errMark := r.store.MarkPublished(ctx, order.ID); errMark != nil {
			log.Printf("failed to mark order as published %v: %v", order.ID, errMark)
			continue
		}
	}
}
