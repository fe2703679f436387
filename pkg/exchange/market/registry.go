package market

import (
	"fmt"
	"sync"
)

// Registry manages all markets in a thread-safe manner and preserves
// creation order for stable listings.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market
	order   []string // ids in creation order
}

func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Create validates and registers a new market.
// Bundle formulas may reference only basic markets that already exist;
// referencing another bundle is rejected.
func (r *Registry) Create(m *Market) error {
	if m == nil {
		return fmt.Errorf("%w: nil market", ErrInvalidMarket)
	}
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.markets[m.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
	}
	if m.Kind == Bundle {
		for _, id := range m.Formula.Operands {
			op, ok := r.markets[id]
			if !ok {
				return fmt.Errorf("%w: operand %s does not exist", ErrInvalidFormula, id)
			}
			if op.Kind != Basic {
				return fmt.Errorf("%w: operand %s is not a basic market", ErrInvalidFormula, id)
			}
		}
	}

	r.markets[m.ID] = m
	r.order = append(r.order, m.ID)
	return nil
}

// Delete removes a market. A basic market still referenced by a bundle
// formula cannot be deleted.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.markets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for _, m := range r.markets {
		if m.Kind != Bundle || m.ID == id {
			continue
		}
		for _, op := range m.Formula.Operands {
			if op == id {
				return fmt.Errorf("%w: %s is an operand of bundle %s", ErrMarketInUse, id, m.ID)
			}
		}
	}

	delete(r.markets, id)
	for i, mid := range r.order {
		if mid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get retrieves a market by id
func (r *Registry) Get(id string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// Exists reports whether a market is registered
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.markets[id]
	return ok
}

// List returns all markets in creation order
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Market, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.markets[id])
	}
	return out
}

// Basics returns all basic markets in creation order
func (r *Registry) Basics() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Market
	for _, id := range r.order {
		if m := r.markets[id]; m.Kind == Basic {
			out = append(out, m)
		}
	}
	return out
}

// Bundles returns all bundle markets in creation order
func (r *Registry) Bundles() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Market
	for _, id := range r.order {
		if m := r.markets[id]; m.Kind == Bundle {
			out = append(out, m)
		}
	}
	return out
}

// Count returns the number of registered markets
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
