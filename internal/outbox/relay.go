package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

// Relay drains the module's event store and pushes events onto the transport.
// One instance runs per module-owning process; batches are processed
// sequentially to keep best-effort oldest-first ordering.
type Relay struct {
	store           storage.Store
	publisher       Publisher
	logger          *zap.Logger
	metrics         MetricsCollector
	backoffStrategy BackoffStrategy
	maxAttempts     int
	batchSize       int
}

func NewRelay(store storage.Store, publisher Publisher, logger *zap.Logger, metrics MetricsCollector, opts ...RelayOption) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	r := &Relay{
		store:           store,
		publisher:       publisher,
		logger:          logger,
		metrics:         metrics,
		backoffStrategy: DefaultBackoffStrategy(),
		maxAttempts:     defaultMaxAttempts,
		batchSize:       defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessEvents runs one polling cycle: fetch a due batch, lease it, publish
// each event, and record the per-event outcome. It is the work function given
// to a BaseWorker.
func (r *Relay) ProcessEvents(ctx context.Context) error {
	start := time.Now()
	events, err := r.fetchAndLease(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}
	r.metrics.RecordDuration("relay.fetch_duration", time.Since(start), nil)

	if len(events) == 0 {
		return nil
	}

	r.logger.Debug("Fetched events for publishing", zap.Int("count", len(events)))
	r.metrics.RecordGauge("relay.batch_size", float64(len(events)), nil)

	published, failed := r.processBatch(ctx, events)

	r.logger.Info("Relay cycle completed",
		zap.Int("published", published),
		zap.Int("failed", failed))
	r.metrics.RecordDuration("relay.duration", time.Since(start), nil)

	return nil
}

func (r *Relay) fetchAndLease(ctx context.Context) ([]storage.EventRecord, error) {
	events, err := r.store.FetchNewEvents(ctx, r.batchSize)
	if err != nil || len(events) == 0 {
		return nil, err
	}

	eventIDs := make([]int64, len(events))
	for i, event := range events {
		eventIDs[i] = event.ID
	}

	// The lease keeps a second relay instance from double-publishing the
	// same rows. If it fails we still publish: the batch is already in
	// memory and redelivery is tolerated downstream.
	if err := r.store.MarkAsProcessing(ctx, eventIDs); err != nil {
		r.logger.Error("Failed to lease batch", zap.Error(err))
	}

	return events, nil
}

func (r *Relay) processBatch(ctx context.Context, events []storage.EventRecord) (published, failed int) {
	for _, event := range events {
		select {
		case <-ctx.Done():
			// Shutdown mid-batch: hand the remaining events back for the
			// next cycle. Uses a fresh context because ours is done.
			r.rescheduleEvent(context.WithoutCancel(ctx), event, ctx.Err())
			failed++
			continue
		default:
		}

		if err := r.publishOne(ctx, event); err != nil {
			failed++
			r.logger.Error("Failed to publish event",
				zap.Int64("event_id", event.ID),
				zap.Error(err))
		} else {
			published++
		}
	}
	return
}

func (r *Relay) publishOne(ctx context.Context, event storage.EventRecord) error {
	eventFields := []zap.Field{
		zap.Int64("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
	}

	record := EventRecord{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventID:       event.EventID,
		EventType:     event.EventType,
		Payload:       event.Payload,
		Headers:       event.Headers,
		Topic:         event.Topic,
		AttemptCount:  event.AttemptCount,
		NextAttemptAt: event.NextAttemptAt,
		OccurredAt:    event.OccurredAt,
	}

	if err := r.publisher.Publish(ctx, record); err != nil {
		r.metrics.IncrementCounter("relay.publish_failed", map[string]string{"event_type": event.EventType})
		return r.rescheduleEvent(ctx, event, err)
	}

	if err := r.store.MarkAsSent(ctx, event.ID); err != nil {
		r.metrics.IncrementCounter("relay.mark_sent_failed", map[string]string{"event_type": event.EventType})
		r.logger.Error("Failed to mark event as sent", append(eventFields, zap.Error(err))...)
		// Published but not recorded as such; stuck-event recovery will
		// reschedule it and the consumer's idempotency absorbs the repeat.
		return err
	}

	r.metrics.IncrementCounter("relay.publish_success", map[string]string{"event_type": event.EventType})
	r.logger.Debug("Event published", eventFields...)
	return nil
}

func (r *Relay) rescheduleEvent(ctx context.Context, event storage.EventRecord, cause error) error {
	attempt := event.AttemptCount + 1
	if attempt >= r.maxAttempts {
		r.logger.Error("Event exceeded max publish attempts",
			zap.Int64("event_id", event.ID),
			zap.Int("attempts", attempt),
			zap.Error(cause),
		)
		r.metrics.IncrementCounter("relay.exhausted", map[string]string{"event_type": event.EventType})
		// Parked in the error state; the dead-letter mover picks it up.
		return r.store.MarkAsFailed(ctx, event.ID, cause.Error())
	}

	nextAttemptAt := r.backoffStrategy.CalculateNextAttempt(attempt)
	r.logger.Info("Scheduling event for retry",
		zap.Int64("event_id", event.ID),
		zap.Time("next_attempt_at", nextAttemptAt),
		zap.Error(cause),
	)

	return r.store.UpdateForRetry(ctx, event.ID, nextAttemptAt, cause.Error())
}
