// Package warranty registers per-unit product warranties when orders are
// fulfilled. The serial number is unique across all warranties, which makes
// re-registration on redelivery a silent no-op.
package warranty

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("warranty: not found")
	ErrSerialExists = errors.New("warranty: serial number already registered")
)

type ProductWarranty struct {
	ID           string
	SerialNumber string
	ProductID    string
	OrderID      string
	CustomerID   string
	PurchasedAt  time.Time
	ExpiresAt    time.Time
}

// NewProductWarranty computes the expiry from the purchase date and the
// product's coverage in months.
func NewProductWarranty(serialNumber, productID, orderID, customerID string, purchasedAt time.Time, months int) *ProductWarranty {
	purchasedAt = purchasedAt.UTC()
	return &ProductWarranty{
		ID:           uuid.NewString(),
		SerialNumber: serialNumber,
		ProductID:    productID,
		OrderID:      orderID,
		CustomerID:   customerID,
		PurchasedAt:  purchasedAt,
		ExpiresAt:    purchasedAt.AddDate(0, months, 0),
	}
}

type Repository interface {
	Create(ctx context.Context, w *ProductWarranty) error
	GetBySerial(ctx context.Context, serialNumber string) (*ProductWarranty, error)
	ListByOrderID(ctx context.Context, orderID string) ([]*ProductWarranty, error)
}

type MemoryRepository struct {
	mu       sync.RWMutex
	bySerial map[string]*ProductWarranty
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bySerial: make(map[string]*ProductWarranty)}
}

func (r *MemoryRepository) Create(_ context.Context, w *ProductWarranty) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySerial[w.SerialNumber]; ok {
		return ErrSerialExists
	}
	clone := *w
	r.bySerial[w.SerialNumber] = &clone
	return nil
}

func (r *MemoryRepository) GetBySerial(_ context.Context, serialNumber string) (*ProductWarranty, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.bySerial[serialNumber]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *w
	return &clone, nil
}

func (r *MemoryRepository) ListByOrderID(_ context.Context, orderID string) ([]*ProductWarranty, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ProductWarranty
	for _, w := range r.bySerial {
		if w.OrderID == orderID {
			clone := *w
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Count is a test and inspection helper.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySerial)
}
