// Package sales owns the order lifecycle. The Order aggregate raises domain
// events as side effects of its transitions; it never publishes anything
// itself, the events sit pending until the capture recorder drains them.
package sales

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harborerp/backoffice/internal/events"
	"github.com/harborerp/backoffice/internal/outbox"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPaid      Status = "paid"
	StatusFulfilled Status = "fulfilled"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

const aggregateType = "order"

var (
	ErrNotFound          = errors.New("sales: order not found")
	ErrNoLines           = errors.New("sales: order has no lines")
	ErrInvalidTransition = errors.New("sales: invalid status transition")
	ErrAmountMismatch    = errors.New("sales: payment amount does not match order total")
)

// Line is one order position. UnitPrice is in minor currency units.
type Line struct {
	ProductID string
	Quantity  int
	UnitPrice int64
	// Serials are assigned at fulfillment, one per unit.
	Serials []string
}

func (l Line) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

// Order is the sales aggregate. All monetary amounts are minor units, tax is
// expressed in basis points so totals stay exact integers.
type Order struct {
	ID            string
	CustomerID    string
	CustomerEmail string
	Status        Status
	Lines         []Line
	TaxRateBps    int64
	CreatedAt     time.Time
	PaidAt        *time.Time
	FulfilledAt   *time.Time

	pending []outbox.Event
}

func NewOrder(id, customerID, customerEmail string, taxRateBps int64, lines []Line) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("sales: line for product %s has non-positive quantity", l.ProductID)
		}
		if l.UnitPrice < 0 {
			return nil, fmt.Errorf("sales: line for product %s has negative unit price", l.ProductID)
		}
	}
	return &Order{
		ID:            id,
		CustomerID:    customerID,
		CustomerEmail: customerEmail,
		Status:        StatusPending,
		Lines:         lines,
		TaxRateBps:    taxRateBps,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func (o *Order) Subtotal() int64 {
	var sum int64
	for _, l := range o.Lines {
		sum += l.Subtotal()
	}
	return sum
}

func (o *Order) Tax() int64 {
	return o.Subtotal() * o.TaxRateBps / 10000
}

func (o *Order) Total() int64 {
	return o.Subtotal() + o.Tax()
}

func (o *Order) IsPaid() bool {
	switch o.Status {
	case StatusPaid, StatusFulfilled, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// Confirm moves a pending order into the confirmed state, ready for payment.
func (o *Order) Confirm() error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusConfirmed)
	}
	o.Status = StatusConfirmed
	return nil
}

// MarkPaid records a captured payment against the order. The amount must
// cover the order total exactly. On success the order raises OrderPaid for
// the notification side and InvoiceRequested for accounting, both carrying
// the correlation id of the chain that triggered the transition.
func (o *Order) MarkPaid(amount int64, paidAt time.Time, correlationID string) error {
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusPaid)
	}
	if amount != o.Total() {
		return fmt.Errorf("%w: got %d, want %d", ErrAmountMismatch, amount, o.Total())
	}

	paidAt = paidAt.UTC()
	o.Status = StatusPaid
	o.PaidAt = &paidAt

	o.raise(events.TypeOrderPaid, events.TopicSales, events.OrderPaid{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		CustomerEmail: o.CustomerEmail,
		TotalAmount:   o.Total(),
		PaidAt:        paidAt,
	}, correlationID)
	o.raise(events.TypeInvoiceRequested, events.TopicSales, events.InvoiceRequested{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		SubtotalAmount: o.Subtotal(),
		TaxAmount:      o.Tax(),
		TotalAmount:    o.Total(),
	}, correlationID)
	return nil
}

// Fulfill assigns a serial number to every unit on every line and raises
// OrderFulfilled so the warranty side can register the serials.
func (o *Order) Fulfill(at time.Time, correlationID string) error {
	if o.Status != StatusPaid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusFulfilled)
	}

	at = at.UTC()
	fulfilled := make([]events.FulfilledLine, 0, len(o.Lines))
	for i := range o.Lines {
		line := &o.Lines[i]
		line.Serials = make([]string, line.Quantity)
		for u := 0; u < line.Quantity; u++ {
			line.Serials[u] = "SN-" + uuid.NewString()
		}
		fulfilled = append(fulfilled, events.FulfilledLine{
			ProductID:     line.ProductID,
			SerialNumbers: append([]string(nil), line.Serials...),
		})
	}

	o.Status = StatusFulfilled
	o.FulfilledAt = &at

	o.raise(events.TypeOrderFulfilled, events.TopicSales, events.OrderFulfilled{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		PurchasedAt: at,
		Lines:       fulfilled,
	}, correlationID)
	return nil
}

// Ship moves a fulfilled order into transit.
func (o *Order) Ship() error {
	if o.Status != StatusFulfilled {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusShipped)
	}
	o.Status = StatusShipped
	return nil
}

// Deliver closes out a shipped order.
func (o *Order) Deliver() error {
	if o.Status != StatusShipped {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusDelivered)
	}
	o.Status = StatusDelivered
	return nil
}

// Cancel is only allowed before money has moved.
func (o *Order) Cancel() error {
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusCancelled)
	}
	o.Status = StatusCancelled
	return nil
}

func (o *Order) raise(eventType, topic string, payload interface{}, correlationID string) {
	headers := make(map[string]string)
	if correlationID != "" {
		headers[outbox.HeaderCorrelationID] = correlationID
	}
	o.pending = append(o.pending, outbox.Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   o.ID,
		Topic:         topic,
		Payload:       payload,
		Headers:       headers,
	})
}

func (o *Order) PendingEvents() []outbox.Event {
	return o.pending
}

func (o *Order) ClearPendingEvents() {
	o.pending = nil
}
