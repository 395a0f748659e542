// Package broker wraps segmentio/kafka-go behind a small client with
// confirmed publishes and manually-acknowledged consumption. The client
// is constructed explicitly and injected into its users; there is no
// package-level connection.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	// ErrBrokerUnavailable means a publish was not confirmed by the broker
	// within the configured timeout. The message may or may not have been
	// written; callers keep their local record and retry later.
	ErrBrokerUnavailable = errors.New("broker unavailable: publish not confirmed")

	// errPermanent marks handler failures that must not be retried.
	errPermanent = errors.New("permanent handler failure")
)

// Permanent wraps err so the consumer loop routes the message straight to
// the dead-letter topic instead of retrying it.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", errPermanent, err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}

// Handler processes one delivered message. Delivery is at-least-once, so
// handlers must be idempotent. A nil return acknowledges the message; a
// plain error requeues it (bounded); a Permanent error dead-letters it.
type Handler func(ctx context.Context, payload []byte) error

type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	DLQTopic       string
	PublishTimeout time.Duration // max wait for broker confirmation
	MaxRetries     int           // handler attempts before dead-lettering
	MaxInFlight    int           // unacknowledged messages being processed
	RetryBackoff   time.Duration // base backoff between handler attempts
}

func (c *Config) applyDefaults() {
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 10
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.DLQTopic == "" {
		c.DLQTopic = c.Topic + ".dlq"
	}
}

// Client publishes to and consumes from a single durable topic.
type Client struct {
	cfg    Config
	writer *kafka.Writer
	dlq    *kafka.Writer
}

func New(cfg Config) *Client {
	cfg.applyDefaults()
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	dlq := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.DLQTopic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Client{cfg: cfg, writer: writer, dlq: dlq}
}

// Publish writes payload to the topic and blocks until the broker
// confirms the write or the publish timeout elapses. The underlying
// writer is safe for concurrent use, so Publish may be called from any
// number of goroutines.
func (c *Client) Publish(ctx context.Context, key string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
		}
		return fmt.Errorf("publish to %s: %w", c.cfg.Topic, err)
	}
	return nil
}

// Consume reads messages from the topic as part of the configured
// consumer group and invokes handler once per delivery. A message is
// committed only after the handler succeeds or the message is
// dead-lettered, and never while an earlier offset on the same
// partition is still being processed; uncommitted messages are
// redelivered after a restart, which is expected. At most MaxInFlight
// handlers run concurrently. Consume blocks until ctx is cancelled.
func (c *Client) Consume(ctx context.Context, handler Handler) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		Topic:    c.cfg.Topic,
		GroupID:  c.cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("error closing kafka reader: %v", err)
		}
	}()

	slots := make(chan struct{}, c.cfg.MaxInFlight)
	tracker := newOffsetTracker()
	fetchBackoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Connection loss or broker hiccup: back off and let the
			// reader re-establish the group subscription.
			log.Printf("error fetching message: %v, retrying in %v", err, fetchBackoff)
			select {
			case <-time.After(fetchBackoff):
			case <-ctx.Done():
				return
			}
			if fetchBackoff < 30*time.Second {
				fetchBackoff *= 2
			}
			continue
		}
		fetchBackoff = time.Second
		tracker.track(m)

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func(m kafka.Message) {
			defer func() { <-slots }()
			c.processMessage(ctx, reader, tracker, m, handler)
		}(m)
	}
}

func (c *Client) processMessage(ctx context.Context, reader *kafka.Reader, tracker *offsetTracker, m kafka.Message, handler Handler) {
	var err error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		err = handler(ctx, m.Value)
		if err == nil {
			break
		}
		if IsPermanent(err) {
			log.Printf("permanent failure for message at offset %d: %v", m.Offset, err)
			break
		}
		log.Printf("handler attempt %d/%d failed for offset %d: %v", attempt, c.cfg.MaxRetries, m.Offset, err)
		select {
		case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return
		}
	}

	if err != nil {
		if dlqErr := c.deadLetter(ctx, m); dlqErr != nil {
			// Leave the message uncommitted so the broker redelivers it.
			// The partition's commit watermark stops here, so later
			// offsets stay uncommitted with it.
			log.Printf("failed to dead-letter message at offset %d: %v", m.Offset, dlqErr)
			return
		}
	}

	commitMsg, ready := tracker.complete(m)
	if !ready {
		// An earlier offset on this partition is still in flight; its
		// completion carries this message's commit forward.
		return
	}
	if commitErr := reader.CommitMessages(ctx, commitMsg); commitErr != nil {
		log.Printf("failed to commit message at offset %d: %v", commitMsg.Offset, commitErr)
	}
}

func (c *Client) deadLetter(ctx context.Context, m kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()

	dead := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: []kafka.Header{
			{Key: "origin_topic", Value: []byte(c.cfg.Topic)},
			{Key: "origin_offset", Value: []byte(fmt.Sprint(m.Offset))},
		},
	}
	if err := c.dlq.WriteMessages(ctx, dead); err != nil {
		return fmt.Errorf("write to %s: %w", c.cfg.DLQTopic, err)
	}
	log.Printf("message at offset %d routed to %s", m.Offset, c.cfg.DLQTopic)
	return nil
}

func (c *Client) Close() {
	if err := c.writer.Close(); err != nil {
		log.Printf("error closing kafka writer: %v", err)
	}
	if err := c.dlq.Close(); err != nil {
		log.Printf("error closing dlq writer: %v", err)
	}
}
