package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) (string, func()) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	topicConfigs := []kafkaGo.TopicConfig{{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}}

	err = controllerConn.CreateTopics(topicConfigs...)
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

type recorder struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     error
	failFor  int // fail the first N deliveries
}

func (r *recorder) handle(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil && (r.failFor == 0 || len(r.payloads) < r.failFor) {
		return r.fail
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func TestPublishConsume_RoundTrip(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	topic := "broker-roundtrip"
	createTopic(t, brokerAddr, topic)

	client := New(Config{
		Brokers: []string{brokerAddr},
		Topic:   topic,
		GroupID: "broker-roundtrip-group",
	})
	defer client.Close()

	require.NoError(t, client.Publish(context.Background(), "k1", []byte(`{"hello":"world"}`)))

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Consume(ctx, rec.handle)

	require.Eventually(t, func() bool {
		return rec.count() == 1
	}, 30*time.Second, 500*time.Millisecond)

	assert.JSONEq(t, `{"hello":"world"}`, string(rec.payloads[0]))
}

func TestConsume_TransientFailure_Redelivered(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	topic := "broker-transient"
	createTopic(t, brokerAddr, topic)

	client := New(Config{
		Brokers:      []string{brokerAddr},
		Topic:        topic,
		GroupID:      "broker-transient-group",
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	})
	defer client.Close()

	require.NoError(t, client.Publish(context.Background(), "k1", []byte(`{"n":1}`)))

	// Handler succeeds on a retry after two transient failures.
	attempts := 0
	var mu sync.Mutex
	done := make(chan struct{})
	handler := func(_ context.Context, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("storage hiccup")
		}
		close(done)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Consume(ctx, handler)

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("message was not retried to success")
	}
}

func TestConsume_PermanentFailure_DeadLettered(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	topic := "broker-poison"
	dlqTopic := topic + ".dlq"
	createTopic(t, brokerAddr, topic)
	createTopic(t, brokerAddr, dlqTopic)

	client := New(Config{
		Brokers:      []string{brokerAddr},
		Topic:        topic,
		GroupID:      "broker-poison-group",
		RetryBackoff: 100 * time.Millisecond,
	})
	defer client.Close()

	require.NoError(t, client.Publish(context.Background(), "bad", []byte("not json")))

	rec := &recorder{fail: Permanent(errors.New("schema violation"))}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Consume(ctx, rec.handle)

	// The poison message must surface on the dead-letter topic.
	dlqReader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    dlqTopic,
		GroupID:  "dlq-inspector",
		MaxBytes: 10e6,
	})
	defer dlqReader.Close()

	readCtx, readCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer readCancel()

	m, err := dlqReader.ReadMessage(readCtx)
	require.NoError(t, err, "expected a dead-lettered message")
	assert.Equal(t, "not json", string(m.Value))

	var originTopic string
	for _, h := range m.Headers {
		if h.Key == "origin_topic" {
			originTopic = string(h.Value)
		}
	}
	assert.Equal(t, topic, originTopic)
}

func TestPublish_BrokerDown_Fails(t *testing.T) {
	client := New(Config{
		Brokers:        []string{"localhost:1"},
		Topic:          "nowhere",
		PublishTimeout: 2 * time.Second,
	})
	defer client.Close()

	err := client.Publish(context.Background(), "k", []byte("x"))
	require.Error(t, err)
}
