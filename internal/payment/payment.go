// Package payment captures incoming payments and starts the order
// choreography. Recording a payment and capturing its PaymentSucceeded event
// happen in one transaction, so a payment row without a pending event (or the
// reverse) cannot exist.
package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/harborerp/backoffice/internal/events"
	"github.com/harborerp/backoffice/internal/outbox"
)

const aggregateType = "payment"

var (
	ErrNotFound  = errors.New("payment: not found")
	ErrDuplicate = errors.New("payment: already recorded")
)

type Payment struct {
	ID         string
	OrderID    string
	Amount     int64
	Method     string
	OccurredAt time.Time

	pending []outbox.Event
}

// NewPayment builds a captured payment and raises PaymentSucceeded. The
// payment is the start of an event chain, so it mints the correlation id the
// rest of the chain threads through.
func NewPayment(orderID string, amount int64, method string, occurredAt time.Time) *Payment {
	occurredAt = occurredAt.UTC()
	p := &Payment{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		Amount:     amount,
		Method:     method,
		OccurredAt: occurredAt,
	}

	p.pending = append(p.pending, outbox.Event{
		EventID:       uuid.NewString(),
		EventType:     events.TypePaymentSucceeded,
		AggregateType: aggregateType,
		AggregateID:   p.ID,
		Topic:         events.TopicPayment,
		Payload: events.PaymentSucceeded{
			PaymentID:  p.ID,
			OrderID:    orderID,
			Amount:     amount,
			Method:     method,
			OccurredAt: occurredAt,
		},
		Headers: map[string]string{
			outbox.HeaderCorrelationID: uuid.NewString(),
		},
	})
	return p
}

func (p *Payment) PendingEvents() []outbox.Event {
	return p.pending
}

func (p *Payment) ClearPendingEvents() {
	p.pending = nil
}
