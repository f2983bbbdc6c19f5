package sales

import (
	"context"
	"sync"
)

type Repository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
}

// MemoryRepository keeps orders in process memory. Durable state for orders
// is out of scope here; the outbox store is the durable part of the pipeline.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]*Order)}
}

func (r *MemoryRepository) Create(_ context.Context, order *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) Update(_ context.Context, order *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return ErrNotFound
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

// cloneOrder copies the persistent state only. Pending events belong to the
// in-flight aggregate instance, not to the store.
func cloneOrder(o *Order) *Order {
	clone := *o
	clone.pending = nil
	clone.Lines = make([]Line, len(o.Lines))
	for i, l := range o.Lines {
		clone.Lines[i] = l
		clone.Lines[i].Serials = append([]string(nil), l.Serials...)
	}
	return &clone
}
