package payment

import (
	"context"
	"sync"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
}

// MemoryRepository backs the in-process deployment mode and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	byOrder  map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		payments: make(map[string]*Payment),
		byOrder:  make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOrder[p.OrderID]; ok {
		return ErrDuplicate
	}
	clone := *p
	clone.pending = nil
	r.payments[p.ID] = &clone
	r.byOrder[p.OrderID] = p.ID
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *MemoryRepository) GetByOrderID(_ context.Context, orderID string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *r.payments[id]
	return &clone, nil
}
