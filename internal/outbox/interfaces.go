package outbox

import (
	"context"
	"time"
)

// Publisher hands a stored event to the message transport. Implementations
// must be safe for sequential calls from a single relay loop; they may be
// called again with the same record after a reported failure.
type Publisher interface {
	Publish(ctx context.Context, event EventRecord) error
	Close() error
}

// MetricsCollector receives operational metrics from the relay and its
// sibling services.
type MetricsCollector interface {
	IncrementCounter(name string, tags map[string]string)
	RecordDuration(name string, duration time.Duration, tags map[string]string)
	RecordGauge(name string, value float64, tags map[string]string)
}

// Worker is a long-running background loop managed by the Dispatcher.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	Name() string
}
