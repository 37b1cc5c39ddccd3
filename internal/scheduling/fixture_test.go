package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/wolfman30/clinic-booking-engine/internal/patients"
	"github.com/wolfman30/clinic-booking-engine/internal/procedures"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

const clinicA = "clinic-a"

type fixture struct {
	store    *MemoryStore
	patients *patients.InMemoryDirectory
	catalog  *procedures.InMemoryCatalog
	orch     *Orchestrator
	resolver *Resolver
	patient  *patients.Patient
	consulta procedures.Procedure
}

// newFixture opens clinicA Monday to Friday 08:00-18:00.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	dir := patients.NewInMemoryDirectory()
	catalog := procedures.NewInMemoryCatalog()

	f := &fixture{
		store:    store,
		patients: dir,
		catalog:  catalog,
		orch:     NewOrchestrator(store, dir, catalog, WithLogger(logging.Discard())),
		resolver: NewResolver(store, 30),
		patient:  dir.Add(clinicA, "Ana Souza", "+15550102000"),
		consulta: catalog.Add(clinicA, "Consulta", 15000, 30),
	}

	var hours []WorkingHours
	for day := time.Monday; day <= time.Friday; day++ {
		hours = append(hours, WorkingHours{Weekday: day, Open: NewClock(8, 0), Close: NewClock(18, 0), Active: true})
	}
	hours = append(hours, WorkingHours{Weekday: time.Saturday, Open: NewClock(9, 0), Close: NewClock(12, 0), Active: false})
	if err := f.orch.SetWorkingHours(context.Background(), clinicA, hours); err != nil {
		t.Fatalf("SetWorkingHours: %v", err)
	}
	return f
}

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func mustClock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return c
}

func clockStrings(cs []Clock) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}
