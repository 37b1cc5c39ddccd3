package patients

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryDirectory is a Directory for development and tests.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	nextID   int64
	patients map[int64]*Patient
}

var _ Directory = (*InMemoryDirectory)(nil)

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{patients: make(map[int64]*Patient)}
}

// Add registers a patient and returns it with an assigned id.
func (d *InMemoryDirectory) Add(clinicID, name, phone string) *Patient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLocked(clinicID, name, phone, false)
}

func (d *InMemoryDirectory) addLocked(clinicID, name, phone string, lead bool) *Patient {
	d.nextID++
	p := &Patient{
		ID:        d.nextID,
		ClinicID:  clinicID,
		Name:      strings.TrimSpace(name),
		Phone:     NormalizePhone(phone),
		IsLead:    lead,
		CreatedAt: time.Now().UTC(),
	}
	d.patients[p.ID] = p
	return p
}

func (d *InMemoryDirectory) ByID(_ context.Context, clinicID string, id int64) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[id]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *InMemoryDirectory) ByPhone(_ context.Context, clinicID, phone string) (*Patient, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var found *Patient
	for _, p := range d.patients {
		if p.ClinicID != clinicID || p.Phone != normalized {
			continue
		}
		if found == nil || p.ID < found.ID {
			found = p
		}
	}
	if found == nil {
		return nil, ErrPatientNotFound
	}
	cp := *found
	return &cp, nil
}

func (d *InMemoryDirectory) CreateLead(_ context.Context, clinicID, name, phone string) (*Patient, error) {
	if NormalizePhone(phone) == "" {
		return nil, ErrInvalidPhone
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		name = NormalizePhone(phone)
	}
	cp := *d.addLocked(clinicID, name, phone, true)
	return &cp, nil
}
