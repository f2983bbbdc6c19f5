package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

var (
	// ErrEventAlreadyExists is returned when an event with the same event_id
	// was already captured.
	ErrEventAlreadyExists = errors.New("event already exists")
)

// EventSource is implemented by aggregates that accumulate domain events
// during a business transaction. Business methods append events; the Recorder
// drains them at commit time.
type EventSource interface {
	PendingEvents() []Event
	ClearPendingEvents()
}

// Recorder is the capture interceptor: it converts the domain events pending
// on a set of aggregates into outbox rows written through the caller's
// transaction. It never publishes anything itself.
type Recorder struct {
	store    storage.Store
	registry *Registry
	logger   *zap.Logger
	metrics  MetricsCollector
}

func NewRecorder(store storage.Store, registry *Registry, logger *zap.Logger, metrics MetricsCollector) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	return &Recorder{
		store:    store,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Capture drains the pending events of each source into the outbox, inside
// the transaction represented by tx. Sources with no pending events
// contribute nothing. Any serialization or insert failure aborts the whole
// call so the surrounding transaction rolls back: a capture bug must not look
// like a successful state change with missing propagation.
//
// A source's pending list is cleared only after all of its events are stored,
// so a later save of the same aggregate does not re-capture them.
func (r *Recorder) Capture(ctx context.Context, tx storage.DBTX, sources ...EventSource) error {
	for _, src := range sources {
		events := src.PendingEvents()
		if len(events) == 0 {
			continue
		}

		for _, event := range events {
			if err := r.save(ctx, tx, event); err != nil {
				return err
			}
		}
		src.ClearPendingEvents()

		r.metrics.RecordGauge("capture.events", float64(len(events)), nil)
	}
	return nil
}

// Save writes a single event through tx. Exposed for business code that
// raises an event without an aggregate to hang it on.
func (r *Recorder) Save(ctx context.Context, tx storage.DBTX, event Event) error {
	return r.save(ctx, tx, event)
}

func (r *Recorder) save(ctx context.Context, tx storage.DBTX, event Event) error {
	if err := validateEvent(event); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !r.registry.Known(event.EventType) {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, event.EventType)
	}

	if event.Headers == nil {
		event.Headers = make(map[string]string)
	}
	event.Headers[HeaderEventID] = event.EventID
	event.Headers[HeaderEventType] = event.EventType

	// Propagate the active trace into the message headers so the consumer
	// side can continue the same trace.
	otel.GetTextMapPropagator().Inject(ctx, NewMessageCarrier(&event))

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", event.EventType, err)
	}
	headersJSON, err := json.Marshal(event.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers for %s: %w", event.EventType, err)
	}

	record := storage.EventRecord{
		EventID:       event.EventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Topic:         event.Topic,
		Payload:       payloadJSON,
		Headers:       headersJSON,
		Status:        EventStatusNew,
	}

	if err := r.store.CreateEvent(ctx, tx, &record); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	r.logger.Debug("Captured domain event",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
	)
	r.metrics.IncrementCounter("capture.saved", map[string]string{"event_type": event.EventType})
	return nil
}

func validateEvent(event Event) error {
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.AggregateType == "" {
		return fmt.Errorf("aggregate_type is required")
	}
	if event.AggregateID == "" {
		return fmt.Errorf("aggregate_id is required")
	}
	return nil
}
