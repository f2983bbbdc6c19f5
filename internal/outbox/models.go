package outbox

import "time"

const (
	EventStatusNew        = 0
	EventStatusSent       = 1
	EventStatusRetry      = 2
	EventStatusError      = 3
	EventStatusProcessing = 4
)

// Header keys attached to every captured event.
const (
	HeaderCorrelationID = "correlation_id"
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
)

// Event is the user-facing representation of an outbox event before it is saved.
// EventID doubles as the idempotency key propagated to every downstream consumer.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	Topic         string            `json:"topic"`
	Payload       interface{}       `json:"payload"`
	Headers       map[string]string `json:"headers"`
}

// CorrelationID returns the correlation id threaded through the event chain,
// or the empty string if the event is the start of a chain.
func (e Event) CorrelationID() string {
	return e.Headers[HeaderCorrelationID]
}

// EventRecord is the database representation of an outbox event as seen by
// the relay and the publisher.
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

// DeadLetterRecord is the database representation of an event that exhausted
// its publish attempts and was moved aside for manual inspection.
type DeadLetterRecord struct {
	ID            int64
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
	Topic         string
	Payload       []byte
	Headers       []byte
	AttemptCount  int
	LastError     string
	CreatedAt     time.Time
}
