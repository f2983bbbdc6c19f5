package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrDuplicateEventID is returned when an event id is captured twice.
	ErrDuplicateEventID = errors.New("duplicate event id")
	// ErrEventNotFound is returned when a row update targets a missing event.
	ErrEventNotFound = errors.New("event not found")
)

// DBTX abstracts the executor an event is written through, so capture can run
// inside whatever transaction the business operation opened (*sql.Tx, a
// transaction-manager handle, or *sql.DB for non-transactional callers).
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Store defines every database operation the outbox core performs.
type Store interface {
	// CreateEvent inserts a new event inside the caller's transaction.
	CreateEvent(ctx context.Context, tx DBTX, event *EventRecord) error
	// FetchNewEvents selects events due for publishing, oldest first.
	FetchNewEvents(ctx context.Context, batchSize int) ([]EventRecord, error)
	// FetchStuckEvents selects events left in the processing state too long.
	FetchStuckEvents(ctx context.Context, batchSize int, stuckTimeout time.Duration) ([]EventRecord, error)
	// FetchEventsToMoveToDeadLetter selects failed events past the attempt cap.
	FetchEventsToMoveToDeadLetter(ctx context.Context, batchSize int, maxAttempts int) ([]EventRecord, error)
	// MarkAsSent records a successful publish and stamps the processed time.
	MarkAsSent(ctx context.Context, eventID int64) error
	// MarkAsProcessing leases a batch before publishing so a second relay
	// instance does not pick up the same rows.
	MarkAsProcessing(ctx context.Context, eventIDs []int64) error
	// UpdateForRetry schedules another attempt and records the failure.
	UpdateForRetry(ctx context.Context, eventID int64, nextAttemptAt time.Time, lastError string) error
	// MarkAsFailed parks an event in the error state for the dead-letter mover.
	MarkAsFailed(ctx context.Context, eventID int64, lastError string) error
	// MoveToDeadLetter copies an event to the dead-letter table and removes it.
	MoveToDeadLetter(ctx context.Context, record EventRecord, lastError string) error
	// ResetStuckEvents returns stuck events to the retry state.
	ResetStuckEvents(ctx context.Context, eventIDs []int64, nextAttemptAt time.Time) error
	// DeleteSentEvents removes sent events older than the retention window.
	DeleteSentEvents(ctx context.Context, retention time.Duration) (int64, error)
	// DeleteDeadLetterEvents removes dead letters older than the retention window.
	DeleteDeadLetterEvents(ctx context.Context, retention time.Duration) (int64, error)
	// EnsureTables creates the outbox tables if they do not exist.
	EnsureTables(ctx context.Context) error
}

type EventRecord struct {
	ID            int64
	AggregateType string
	AggregateID   string
	EventID       string
	EventType     string
	Payload       []byte
	Headers       []byte
	Topic         string
	Status        int
	AttemptCount  int
	LastError     string
	NextAttemptAt *time.Time
	OccurredAt    time.Time
	ProcessedAt   *time.Time
}
