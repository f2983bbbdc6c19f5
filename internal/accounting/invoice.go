// Package accounting issues accounts-receivable invoices in reaction to
// InvoiceRequested events. One order gets at most one invoice; the unique
// order id constraint is what makes redeliveries harmless.
package accounting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusVoided InvoiceStatus = "voided"
)

var (
	ErrNotFound       = errors.New("accounting: invoice not found")
	ErrDuplicateOrder = errors.New("accounting: invoice for order already exists")
)

type Invoice struct {
	ID             string
	OrderID        string
	CustomerID     string
	SubtotalAmount int64
	TaxAmount      int64
	TotalAmount    int64
	Status         InvoiceStatus
	IssuedAt       time.Time
	PaidAt         *time.Time
	Notes          string
}

func NewInvoice(orderID, customerID string, subtotal, tax, total int64) *Invoice {
	return &Invoice{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		CustomerID:     customerID,
		SubtotalAmount: subtotal,
		TaxAmount:      tax,
		TotalAmount:    total,
		Status:         InvoiceStatusIssued,
		IssuedAt:       time.Now().UTC(),
	}
}

// MarkPaid settles the invoice.
func (i *Invoice) MarkPaid(at time.Time) {
	at = at.UTC()
	i.Status = InvoiceStatusPaid
	i.PaidAt = &at
}

type Repository interface {
	Create(ctx context.Context, invoice *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	GetByOrderID(ctx context.Context, orderID string) (*Invoice, error)
	Update(ctx context.Context, invoice *Invoice) error
}

type MemoryRepository struct {
	mu       sync.RWMutex
	invoices map[string]*Invoice
	byOrder  map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		invoices: make(map[string]*Invoice),
		byOrder:  make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, invoice *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOrder[invoice.OrderID]; ok {
		return ErrDuplicateOrder
	}
	clone := *invoice
	r.invoices[invoice.ID] = &clone
	r.byOrder[invoice.OrderID] = invoice.ID
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *inv
	return &clone, nil
}

func (r *MemoryRepository) GetByOrderID(_ context.Context, orderID string) (*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *r.invoices[id]
	return &clone, nil
}

func (r *MemoryRepository) Update(_ context.Context, invoice *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[invoice.ID]; !ok {
		return ErrNotFound
	}
	clone := *invoice
	r.invoices[invoice.ID] = &clone
	return nil
}

// Count is a test and inspection helper.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.invoices)
}
