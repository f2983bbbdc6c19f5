package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

// DeadLetterService moves events that exhausted their publish attempts into
// the dead-letter table, where they wait for manual inspection or replay
// instead of being retried forever.
type DeadLetterService struct {
	store       storage.Store
	logger      *zap.Logger
	metrics     MetricsCollector
	batchSize   int
	maxAttempts int
}

func NewDeadLetterService(store storage.Store, logger *zap.Logger, metrics MetricsCollector, batchSize, maxAttempts int) *DeadLetterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &DeadLetterService{
		store:       store,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// MoveToDeadLetters is the work function for the dead-letter worker.
func (s *DeadLetterService) MoveToDeadLetters(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("deadletter.duration", time.Since(start), nil)
	}()

	events, err := s.store.FetchEventsToMoveToDeadLetter(ctx, s.batchSize, s.maxAttempts)
	if err != nil {
		return fmt.Errorf("failed to fetch events for dead-letter queue: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	s.logger.Info("Found events to dead-letter", zap.Int("count", len(events)))

	moved := 0
	for _, event := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastError := event.LastError
		if lastError == "" {
			lastError = "publish attempts exhausted"
		}

		if err := s.store.MoveToDeadLetter(ctx, event, lastError); err != nil {
			s.logger.Error("Failed to move event to dead-letter queue",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			s.metrics.IncrementCounter("deadletter.move_failed", nil)
			continue
		}
		moved++
		s.metrics.IncrementCounter("deadletter.move_success", map[string]string{"event_type": event.EventType})
	}

	s.logger.Info("Dead-letter pass finished", zap.Int("moved_count", moved))
	return nil
}
