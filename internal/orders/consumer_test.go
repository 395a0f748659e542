package orders

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoangTuan-git/action-E-project/internal/broker"
	"github.com/HoangTuan-git/action-E-project/internal/messaging"
)

type mockOrderRepo struct {
	created   []*Order
	createErr error
}

func (m *mockOrderRepo) CreateOrder(_ context.Context, order *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.created {
		if existing.ID == order.ID {
			return ErrDuplicateOrder
		}
	}
	m.created = append(m.created, order)
	return nil
}

func (m *mockOrderRepo) GetOrderByID(_ context.Context, id string) (*Order, error) {
	for _, o := range m.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *mockOrderRepo) ListOrdersByUsername(_ context.Context, username string) ([]*Order, error) {
	var result []*Order
	for _, o := range m.created {
		if o.Username == username {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *mockOrderRepo) RunMigrations(*Credentials) error { return nil }

func (m *mockOrderRepo) Close() error { return nil }

func validEvent() messaging.OrderCreatedEvent {
	now := time.Now().UTC()
	return messaging.OrderCreatedEvent{
		Event:    messaging.EventOrderCreated,
		OrderID:  "order-1",
		Username: "alice",
		LineItems: []messaging.LineItem{
			{ProductID: "P1", Name: "Webcam", UnitPrice: 50, Quantity: 2},
		},
		CreatedAt: now,
		EmittedAt: now,
	}
}

func TestHandleOrderCreated_PersistsCompletedOrder(t *testing.T) {
	repo := &mockOrderRepo{}
	consumer := NewConsumer(repo)

	payload, err := json.Marshal(validEvent())
	require.NoError(t, err)

	require.NoError(t, consumer.HandleOrderCreated(context.Background(), payload))

	require.Len(t, repo.created, 1)
	order := repo.created[0]
	assert.Equal(t, "order-1", order.ID)
	assert.Equal(t, "alice", order.Username)
	assert.Equal(t, StatusCompleted, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Webcam", order.Items[0].Name)
	assert.Equal(t, 50.0, order.Items[0].UnitPrice)
	assert.Equal(t, 2, order.Items[0].Quantity)
}

func TestHandleOrderCreated_DuplicateDelivery_IsNoOp(t *testing.T) {
	repo := &mockOrderRepo{}
	consumer := NewConsumer(repo)

	payload, err := json.Marshal(validEvent())
	require.NoError(t, err)

	require.NoError(t, consumer.HandleOrderCreated(context.Background(), payload))
	require.NoError(t, consumer.HandleOrderCreated(context.Background(), payload))

	assert.Len(t, repo.created, 1, "exactly one order despite duplicate delivery")
}

func TestHandleOrderCreated_MalformedPayload_IsPermanent(t *testing.T) {
	consumer := NewConsumer(&mockOrderRepo{})

	err := consumer.HandleOrderCreated(context.Background(), []byte("not json"))

	require.Error(t, err)
	assert.True(t, broker.IsPermanent(err), "malformed payload must not be retried")
}

func TestHandleOrderCreated_MissingFields_IsPermanent(t *testing.T) {
	consumer := NewConsumer(&mockOrderRepo{})

	event := validEvent()
	event.OrderID = ""
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	err = consumer.HandleOrderCreated(context.Background(), payload)

	require.Error(t, err)
	assert.True(t, broker.IsPermanent(err))
}

func TestHandleOrderCreated_InvalidLineItem_IsPermanent(t *testing.T) {
	cases := []struct {
		name string
		item messaging.LineItem
	}{
		{"zero quantity", messaging.LineItem{ProductID: "P1", Name: "Webcam", UnitPrice: 50, Quantity: 0}},
		{"negative quantity", messaging.LineItem{ProductID: "P1", Name: "Webcam", UnitPrice: 50, Quantity: -3}},
		{"negative price", messaging.LineItem{ProductID: "P1", Name: "Webcam", UnitPrice: -1, Quantity: 1}},
		{"missing product id", messaging.LineItem{Name: "Webcam", UnitPrice: 50, Quantity: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockOrderRepo{}
			consumer := NewConsumer(repo)

			event := validEvent()
			event.LineItems = []messaging.LineItem{tc.item}
			payload, err := json.Marshal(event)
			require.NoError(t, err)

			err = consumer.HandleOrderCreated(context.Background(), payload)

			require.Error(t, err)
			assert.True(t, broker.IsPermanent(err), "invalid line items must be dead-lettered")
			assert.Empty(t, repo.created, "nothing may be persisted for an invalid message")
		})
	}
}

func TestHandleOrderCreated_RepublishedEvent_KeepsCreationTime(t *testing.T) {
	repo := &mockOrderRepo{}
	consumer := NewConsumer(repo)

	event := validEvent()
	event.CreatedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	event.EmittedAt = event.CreatedAt.Add(30 * time.Minute)
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, consumer.HandleOrderCreated(context.Background(), payload))

	require.Len(t, repo.created, 1)
	assert.Equal(t, event.CreatedAt, repo.created[0].CreatedAt)
}

func TestHandleOrderCreated_StorageFailure_IsTransient(t *testing.T) {
	repo := &mockOrderRepo{createErr: errors.New("connection refused")}
	consumer := NewConsumer(repo)

	payload, err := json.Marshal(validEvent())
	require.NoError(t, err)

	err = consumer.HandleOrderCreated(context.Background(), payload)

	require.Error(t, err)
	assert.False(t, broker.IsPermanent(err), "storage failures must be requeued")
}
