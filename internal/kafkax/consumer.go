// Package kafkax is the Kafka side of the consumer framework: a consumer
// group that feeds deliveries into a consumer.Mux. Offsets are stored only
// after a successful dispatch, so a failed handler sees the message again.
// Delivery is at-least-once, with consumer idempotency absorbing the repeats.
package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/consumer"
	"github.com/harborerp/backoffice/internal/outbox"
)

const (
	pollTimeoutMs = 200
	failurePause  = time.Second
)

type Consumer struct {
	inner  *kafka.Consumer
	mux    *consumer.Mux
	logger *zap.Logger
	topics []string
}

func NewConsumer(brokers, groupID string, topics []string, mux *consumer.Mux, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	inner, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
		// Offsets are committed automatically but stored manually, only
		// after the mux reports success.
		"enable.auto.commit":       true,
		"enable.auto.offset.store": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		inner:  inner,
		mux:    mux,
		logger: logger,
		topics: topics,
	}, nil
}

// Run polls until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.inner.SubscribeTopics(c.topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.logger.Info("Kafka consumer started", zap.Strings("topics", c.topics))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Kafka consumer stopping")
			return nil
		default:
		}

		ev := c.inner.Poll(pollTimeoutMs)
		if ev == nil {
			continue
		}

		switch msg := ev.(type) {
		case *kafka.Message:
			c.handleMessage(ctx, msg)
		case kafka.Error:
			if msg.IsFatal() {
				return fmt.Errorf("fatal kafka error: %w", errors.New(msg.Error()))
			}
			c.logger.Warn("Kafka error", zap.String("error", msg.Error()))
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg *kafka.Message) {
	d := deliveryFromKafka(msg)

	if err := c.mux.Dispatch(ctx, d); err != nil {
		c.logger.Warn("Dispatch failed, rewinding partition for redelivery",
			zap.String("event_id", d.EventID),
			zap.String("event_type", d.EventType),
			zap.Error(err),
		)
		// Seek back to the failed message so the next poll redelivers it.
		if seekErr := c.inner.Seek(msg.TopicPartition, 0); seekErr != nil {
			c.logger.Error("Failed to seek for redelivery", zap.Error(seekErr))
		}
		time.Sleep(failurePause)
		return
	}

	if _, err := c.inner.StoreMessage(msg); err != nil {
		c.logger.Error("Failed to store offset", zap.Error(err))
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.inner.Close()
}

func deliveryFromKafka(msg *kafka.Message) consumer.Delivery {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return consumer.Delivery{
		EventID:       headers[outbox.HeaderEventID],
		EventType:     headers[outbox.HeaderEventType],
		AggregateType: headers["aggregate_type"],
		AggregateID:   string(msg.Key),
		Payload:       msg.Value,
		Headers:       headers,
		Attempt:       1,
	}
}
