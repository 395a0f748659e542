package intake

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HoangTuan-git/action-E-project/internal/messaging"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStore persists intake's local view of orders. The pending record
// written here is the authoritative evidence that a sale happened, even
// when the broker is down.
type OrderStore interface {
	CreatePending(ctx context.Context, order *Order) error
	MarkPublished(ctx context.Context, orderID string) error
	MarkFailed(ctx context.Context, orderID string) error
	ListUnpublished(ctx context.Context, limit int) ([]*Order, error)
}

// PendingStore keeps pending orders in the product service's sqlite
// database, next to the catalog.
type PendingStore struct {
	db *sql.DB
}

func NewPendingStore(db *sql.DB) *PendingStore {
	return &PendingStore{db: db}
}

func (s *PendingStore) CreatePending(ctx context.Context, order *Order) error {
	items, err := json.Marshal(order.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	query := `
		INSERT INTO pending_orders (id, username, line_items, status, published, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
	`

	_, err = s.db.ExecContext(ctx, query,
		order.ID,
		order.Username,
		string(items),
		order.Status,
		order.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert pending order: %w", err)
	}
	return nil
}

func (s *PendingStore) MarkPublished(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_orders SET published = 1 WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("mark order published: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkFailed moves a pending order to its terminal failed state. Terminal
// states are never overwritten.
func (s *PendingStore) MarkFailed(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_orders SET status = $1 WHERE id = $2 AND status = $3`,
		StatusFailed, orderID, StatusPending)
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *PendingStore) ListUnpublished(ctx context.Context, limit int) ([]*Order, error) {
	query := `
		SELECT id, username, line_items, status, created_at
		FROM pending_orders
		WHERE published = 0 AND status = $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var (
			order     Order
			itemsJSON string
			createdAt time.Time
		)
		if err := rows.Scan(&order.ID, &order.Username, &itemsJSON, &order.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending order: %w", err)
		}
		var items []messaging.LineItem
		if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
			return nil, fmt.Errorf("unmarshal line items: %w", err)
		}
		order.LineItems = items
		order.CreatedAt = createdAt
		orders = append(orders, &order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}
