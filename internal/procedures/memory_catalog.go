package procedures

import (
	"context"
	"sort"
	"sync"
)

// InMemoryCatalog is a Catalog for development and tests.
type InMemoryCatalog struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]Procedure
}

var _ Catalog = (*InMemoryCatalog)(nil)

func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{items: make(map[int64]Procedure)}
}

// Add registers a procedure and returns it with an assigned id.
func (c *InMemoryCatalog) Add(clinicID, name string, priceCents int64, durationMinutes int) Procedure {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	p := Procedure{ID: c.nextID, ClinicID: clinicID, Name: name, PriceCents: priceCents, DefaultDuration: durationMinutes}
	c.items[p.ID] = p
	return p
}

// UpdatePrice changes the live price of a procedure.
func (c *InMemoryCatalog) UpdatePrice(clinicID string, id int64, priceCents int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[id]
	if !ok || p.ClinicID != clinicID {
		return ErrProcedureNotFound
	}
	p.PriceCents = priceCents
	c.items[id] = p
	return nil
}

func (c *InMemoryCatalog) ByID(_ context.Context, clinicID string, id int64) (*Procedure, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.items[id]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrProcedureNotFound
	}
	return &p, nil
}

func (c *InMemoryCatalog) ByName(ctx context.Context, clinicID, name string) (*Procedure, error) {
	list, _ := c.List(ctx, clinicID)
	p, ok := MatchName(list, name)
	if !ok {
		return nil, ErrProcedureNotFound
	}
	return p, nil
}

func (c *InMemoryCatalog) List(_ context.Context, clinicID string) ([]Procedure, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Procedure
	for _, p := range c.items {
		if p.ClinicID == clinicID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
