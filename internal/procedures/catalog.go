package procedures

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrProcedureNotFound is returned when no procedure matches within the clinic.
var ErrProcedureNotFound = errors.New("procedures: procedure not found")

// Procedure is a bookable service with its current price.
type Procedure struct {
	ID              int64  `json:"id"`
	ClinicID        string `json:"-"`
	Name            string `json:"name"`
	PriceCents      int64  `json:"price_cents"`
	DefaultDuration int    `json:"default_duration"`
}

// Catalog reads a clinic's procedures.
type Catalog interface {
	ByID(ctx context.Context, clinicID string, id int64) (*Procedure, error)
	// ByName does a case-insensitive substring match. An exact name match
	// wins; otherwise the match with the lowest id.
	ByName(ctx context.Context, clinicID, name string) (*Procedure, error)
	List(ctx context.Context, clinicID string) ([]Procedure, error)
}

// MatchName applies the ByName rule to an in-memory list.
func MatchName(list []Procedure, name string) (*Procedure, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, false
	}
	candidates := make([]Procedure, 0, len(list))
	for _, p := range list {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		ei := strings.EqualFold(candidates[i].Name, needle)
		ej := strings.EqualFold(candidates[j].Name, needle)
		if ei != ej {
			return ei
		}
		return candidates[i].ID < candidates[j].ID
	})
	return &candidates[0], true
}
