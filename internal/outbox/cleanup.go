package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

// CleanupService trims sent events and old dead letters past their retention
// windows. Individual deletion failures are logged but never stop the worker.
type CleanupService struct {
	store               storage.Store
	logger              *zap.Logger
	metrics             MetricsCollector
	sentRetention       time.Duration
	deadLetterRetention time.Duration
}

func NewCleanupService(store storage.Store, logger *zap.Logger, metrics MetricsCollector, opts ...CleanupOption) *CleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	c := &CleanupService{
		store:               store,
		logger:              logger,
		metrics:             metrics,
		sentRetention:       defaultSentEventsRetention,
		deadLetterRetention: defaultDeadLetterRetention,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cleanup is the work function for the cleanup worker.
func (s *CleanupService) Cleanup(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("cleanup.duration", time.Since(start), nil)
	}()

	sentDeleted, err := s.store.DeleteSentEvents(ctx, s.sentRetention)
	if err != nil {
		s.logger.Error("Failed to clean up sent events", zap.Error(err))
		s.metrics.IncrementCounter("cleanup.sent_events.failed", nil)
	} else if sentDeleted > 0 {
		s.logger.Info("Cleaned up sent events", zap.Int64("count", sentDeleted))
		s.metrics.RecordGauge("cleanup.sent_events.deleted", float64(sentDeleted), nil)
	}

	dlDeleted, err := s.store.DeleteDeadLetterEvents(ctx, s.deadLetterRetention)
	if err != nil {
		s.logger.Error("Failed to clean up dead-letter events", zap.Error(err))
		s.metrics.IncrementCounter("cleanup.dead_letter.failed", nil)
	} else if dlDeleted > 0 {
		s.logger.Info("Cleaned up dead-letter events", zap.Int64("count", dlDeleted))
		s.metrics.RecordGauge("cleanup.dead_letter.deleted", float64(dlDeleted), nil)
	}

	// Always nil: cleanup failures must not stop the worker loop.
	return nil
}
