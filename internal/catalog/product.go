package catalog

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("catalog: product not found")

// Product is the catalog's view of a sellable item. WarrantyMonths drives
// warranty registration downstream.
type Product struct {
	ID             string
	SKU            string
	Name           string
	UnitPrice      int64
	WarrantyMonths int
}

type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
}

// MemoryRepository is the in-process product store.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]*Product
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{products: make(map[string]*Product)}
}

func (r *MemoryRepository) Add(p *Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *p
	r.products[p.ID] = &clone
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}
