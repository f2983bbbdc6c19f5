// Package events is the wire contract between modules: the versioned payload
// shapes and the registry that maps type names to them. The mapping is
// append-only. A payload field may be added (optional), never removed or
// retyped, and a breaking change gets a new .v2 name, so in-flight messages
// captured before a deploy keep decoding.
package events

import (
	"time"

	"github.com/harborerp/backoffice/internal/outbox"
)

// Topics, one per publishing module.
const (
	TopicPayment    = "payment.events"
	TopicSales      = "sales.events"
	TopicAccounting = "accounting.events"
)

// Event type names. The version suffix is part of the name.
const (
	TypePaymentSucceeded = "payment.succeeded.v1"
	TypeOrderPaid        = "sales.order_paid.v1"
	TypeOrderFulfilled   = "sales.order_fulfilled.v1"
	TypeInvoiceRequested = "accounting.invoice_requested.v1"
	TypeInvoicePaid      = "accounting.invoice_paid.v1"
)

// PaymentSucceeded is raised by the payment module when a payment for an
// order is captured. It starts the order choreography.
type PaymentSucceeded struct {
	PaymentID  string    `json:"payment_id"`
	OrderID    string    `json:"order_id"`
	Amount     int64     `json:"amount"`
	Method     string    `json:"method"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderPaid is raised by the sales module once the order transitions to Paid.
// The communication module reacts with a confirmation email.
type OrderPaid struct {
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	CustomerEmail string    `json:"customer_email"`
	TotalAmount   int64     `json:"total_amount"`
	PaidAt        time.Time `json:"paid_at"`
}

// InvoiceRequested asks the accounting module for an AR invoice.
type InvoiceRequested struct {
	OrderID        string `json:"order_id"`
	CustomerID     string `json:"customer_id"`
	SubtotalAmount int64  `json:"subtotal_amount"`
	TaxAmount      int64  `json:"tax_amount"`
	TotalAmount    int64  `json:"total_amount"`
}

// FulfilledLine carries the serial numbers assigned to one order line.
type FulfilledLine struct {
	ProductID     string   `json:"product_id"`
	SerialNumbers []string `json:"serial_numbers"`
}

// OrderFulfilled is raised by the sales module when serials are assigned.
// The warranty module registers one warranty per serial.
type OrderFulfilled struct {
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	PurchasedAt time.Time       `json:"purchased_at"`
	Lines       []FulfilledLine `json:"lines"`
}

// InvoicePaid is raised by the accounting module when an invoice is settled.
type InvoicePaid struct {
	InvoiceID   string    `json:"invoice_id"`
	OrderID     string    `json:"order_id"`
	TotalAmount int64     `json:"total_amount"`
	PaidAt      time.Time `json:"paid_at"`
}

// NewRegistry wires every known event type. Modules share one registry per
// process; the relay and the consumer mux both resolve through it.
func NewRegistry() *outbox.Registry {
	r := outbox.NewRegistry()
	r.MustRegister(TypePaymentSucceeded, outbox.JSONDecoder[PaymentSucceeded]())
	r.MustRegister(TypeOrderPaid, outbox.JSONDecoder[OrderPaid]())
	r.MustRegister(TypeOrderFulfilled, outbox.JSONDecoder[OrderFulfilled]())
	r.MustRegister(TypeInvoiceRequested, outbox.JSONDecoder[InvoiceRequested]())
	r.MustRegister(TypeInvoicePaid, outbox.JSONDecoder[InvoicePaid]())
	return r
}
