package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

// StuckEventRecovery returns events that were leased (marked processing) but
// never resolved; a relay crash between publish and mark-sent leaves rows in
// that state. Recovered events go back to retry, or to the error state when
// their attempts are already exhausted. Redelivery of an event that was in
// fact published is expected and absorbed by consumer idempotency.
type StuckEventRecovery struct {
	store           storage.Store
	logger          *zap.Logger
	metrics         MetricsCollector
	backoffStrategy BackoffStrategy
	batchSize       int
	maxAttempts     int
	stuckTimeout    time.Duration
}

func NewStuckEventRecovery(store storage.Store, logger *zap.Logger, metrics MetricsCollector, opts ...StuckRecoveryOption) *StuckEventRecovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	s := &StuckEventRecovery{
		store:           store,
		logger:          logger,
		metrics:         metrics,
		backoffStrategy: DefaultBackoffStrategy(),
		batchSize:       defaultBatchSize,
		maxAttempts:     defaultMaxAttempts,
		stuckTimeout:    defaultStuckEventTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecoverStuckEvents is the work function for the stuck-event worker.
func (s *StuckEventRecovery) RecoverStuckEvents(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("stuck_events.duration", time.Since(start), nil)
	}()

	events, err := s.store.FetchStuckEvents(ctx, s.batchSize, s.stuckTimeout)
	if err != nil {
		return fmt.Errorf("failed to fetch stuck events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	recovered := 0
	for _, event := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if event.AttemptCount >= s.maxAttempts {
			if err := s.store.MarkAsFailed(ctx, event.ID, "recovered from stuck state after max attempts"); err != nil {
				s.logger.Error("Failed to fail stuck event", zap.Int64("event_id", event.ID), zap.Error(err))
				continue
			}
			s.metrics.IncrementCounter("stuck_events.marked_as_error", nil)
		} else {
			nextAttemptAt := s.backoffStrategy.CalculateNextAttempt(event.AttemptCount + 1)
			if err := s.store.ResetStuckEvents(ctx, []int64{event.ID}, nextAttemptAt); err != nil {
				s.logger.Error("Failed to reset stuck event", zap.Int64("event_id", event.ID), zap.Error(err))
				continue
			}
			s.metrics.IncrementCounter("stuck_events.marked_as_retry", nil)
		}
		recovered++
	}

	s.logger.Info("Stuck event recovery completed",
		zap.Int("recovered_count", recovered),
		zap.Duration("stuck_threshold", s.stuckTimeout),
	)
	return nil
}
