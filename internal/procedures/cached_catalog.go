package procedures

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedCatalog memoizes List per clinic for prompt assembly. Booking paths
// must use the underlying catalog so price snapshots read the live price.
type CachedCatalog struct {
	next  Catalog
	cache *cache.Cache
}

var _ Catalog = (*CachedCatalog)(nil)

func NewCachedCatalog(next Catalog, ttl time.Duration) *CachedCatalog {
	if next == nil {
		panic("procedures: catalog cannot be nil")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedCatalog{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedCatalog) List(ctx context.Context, clinicID string) ([]Procedure, error) {
	if v, ok := c.cache.Get(clinicID); ok {
		return v.([]Procedure), nil
	}
	list, err := c.next.List(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(clinicID, list)
	return list, nil
}

func (c *CachedCatalog) ByID(ctx context.Context, clinicID string, id int64) (*Procedure, error) {
	list, err := c.List(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			p := list[i]
			return &p, nil
		}
	}
	return nil, ErrProcedureNotFound
}

func (c *CachedCatalog) ByName(ctx context.Context, clinicID, name string) (*Procedure, error) {
	list, err := c.List(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	p, ok := MatchName(list, name)
	if !ok {
		return nil, ErrProcedureNotFound
	}
	return p, nil
}

// Invalidate drops the cached list for a clinic.
func (c *CachedCatalog) Invalidate(clinicID string) {
	c.cache.Delete(clinicID)
}
