package orders

import (
	"context"
	"errors"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order with this id already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByID(ctx context.Context, id string) (*Order, error)
	// ListOrdersByUsername returns the user's processed orders,
	// newest-first by creation time. This ordering is part of the query
	// contract.
	ListOrdersByUsername(ctx context.Context, username string) ([]*Order, error)
	RunMigrations(*Credentials) error
	Close() error
}
