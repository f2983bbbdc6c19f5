// Package consumer is the framework idempotent event handlers plug into.
// A Mux routes deliveries by event type, decodes payloads through the shared
// registry, and bounds each handler invocation. Transports (Kafka, the
// in-process bus, or the relay directly) feed it Delivery values and redeliver
// whenever Dispatch returns an error.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/outbox"
)

const defaultHandlerTimeout = 30 * time.Second

// Delivery is a raw message as handed over by a transport.
type Delivery struct {
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       []byte
	Headers       map[string]string
	Attempt       int
}

// Message is a decoded delivery as seen by a handler.
type Message struct {
	EventID       string
	EventType     string
	AggregateID   string
	CorrelationID string
	Payload       interface{}
	Headers       map[string]string
	Attempt       int
}

// Handler reacts to one event type and applies exactly one business effect.
// Handle must be idempotent: the transport may deliver the same message more
// than once, and different messages concurrently.
type Handler interface {
	EventType() string
	Handle(ctx context.Context, msg Message) error
}

// Mux routes deliveries to the handlers registered for their event type.
type Mux struct {
	registry *outbox.Registry
	logger   *zap.Logger
	metrics  outbox.MetricsCollector
	timeout  time.Duration

	mu       sync.RWMutex
	handlers map[string][]Handler
}

type MuxOption func(*Mux)

func WithHandlerTimeout(timeout time.Duration) MuxOption {
	return func(m *Mux) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

func NewMux(registry *outbox.Registry, logger *zap.Logger, metrics outbox.MetricsCollector, opts ...MuxOption) *Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = outbox.NewNopMetricsCollector()
	}
	m := &Mux{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		timeout:  defaultHandlerTimeout,
		handlers: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds handlers to the mux. Registering a handler for an event type
// the registry does not know is a wiring bug.
func (m *Mux) Register(handlers ...Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range handlers {
		eventType := h.EventType()
		if !m.registry.Known(eventType) {
			return fmt.Errorf("%w: %s", outbox.ErrUnknownEventType, eventType)
		}
		m.handlers[eventType] = append(m.handlers[eventType], h)
	}
	return nil
}

// Dispatch decodes a delivery and runs every handler registered for its type,
// sequentially. A non-nil return means at least one handler failed and the
// transport should redeliver. Deliveries nobody subscribes to are acknowledged
// silently; a payload that cannot be decoded is a poison message and is
// acknowledged after logging, because redelivery cannot fix it.
func (m *Mux) Dispatch(ctx context.Context, d Delivery) error {
	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers[d.EventType]...)
	m.mu.RUnlock()

	if len(handlers) == 0 {
		m.logger.Debug("No subscriber for event", zap.String("event_type", d.EventType))
		return nil
	}

	payload, err := m.registry.Decode(d.EventType, d.Payload)
	if err != nil {
		m.logger.Error("Dropping undecodable event",
			zap.String("event_id", d.EventID),
			zap.String("event_type", d.EventType),
			zap.Error(err),
		)
		m.metrics.IncrementCounter("consumer.poison", map[string]string{"event_type": d.EventType})
		return nil
	}

	msg := Message{
		EventID:       d.EventID,
		EventType:     d.EventType,
		AggregateID:   d.AggregateID,
		CorrelationID: d.Headers[outbox.HeaderCorrelationID],
		Payload:       payload,
		Headers:       d.Headers,
		Attempt:       d.Attempt,
	}

	for _, h := range handlers {
		if err := m.invoke(ctx, h, msg); err != nil {
			m.metrics.IncrementCounter("consumer.handler_failed", map[string]string{"event_type": d.EventType})
			return fmt.Errorf("handler for %s failed: %w", d.EventType, err)
		}
	}

	m.metrics.IncrementCounter("consumer.handled", map[string]string{"event_type": d.EventType})
	return nil
}

func (m *Mux) invoke(ctx context.Context, h Handler, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := h.Handle(ctx, msg)
	m.metrics.RecordDuration("consumer.handle_duration", time.Since(start), map[string]string{"event_type": msg.EventType})

	if err != nil {
		m.logger.Error("Handler failed",
			zap.String("event_id", msg.EventID),
			zap.String("event_type", msg.EventType),
			zap.String("correlation_id", msg.CorrelationID),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err),
		)
		return err
	}

	m.logger.Debug("Handler applied",
		zap.String("event_id", msg.EventID),
		zap.String("event_type", msg.EventType),
		zap.String("correlation_id", msg.CorrelationID),
	)
	return nil
}

// DeliveryFromRecord converts a stored event into a transport delivery.
func DeliveryFromRecord(record outbox.EventRecord, attempt int) Delivery {
	headers := make(map[string]string)
	if len(record.Headers) > 0 {
		// Headers were marshaled by the capture side; a decode failure here
		// only loses metadata, never the payload.
		_ = json.Unmarshal(record.Headers, &headers)
	}
	return Delivery{
		EventID:       record.EventID,
		EventType:     record.EventType,
		AggregateType: record.AggregateType,
		AggregateID:   record.AggregateID,
		Payload:       record.Payload,
		Headers:       headers,
		Attempt:       attempt,
	}
}

// DirectPublisher short-circuits the transport: Publish dispatches the event
// synchronously through the mux. In this mode the relay's own retry, backoff
// and dead-letter machinery doubles as the redelivery mechanism, which keeps
// single-process deployments at-least-once without a broker.
type DirectPublisher struct {
	mux *Mux
}

func NewDirectPublisher(mux *Mux) *DirectPublisher {
	return &DirectPublisher{mux: mux}
}

func (p *DirectPublisher) Publish(ctx context.Context, record outbox.EventRecord) error {
	return p.mux.Dispatch(ctx, DeliveryFromRecord(record, record.AttemptCount+1))
}

func (p *DirectPublisher) Close() error {
	return nil
}
