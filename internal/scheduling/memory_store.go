package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"
)

type slotKey struct {
	clinicID string
	date     Date
	time     Clock
}

// MemoryStore is an in-process Store used for development and tests. It
// enforces slot uniqueness under its mutex the same way the Postgres partial
// unique index does.
type MemoryStore struct {
	mu           sync.RWMutex
	hours        map[string]map[time.Weekday]WorkingHours
	blocks       map[string]Block
	appointments map[string]Appointment
	payments     map[string]PaymentRecord
	slots        map[slotKey]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hours:        make(map[string]map[time.Weekday]WorkingHours),
		blocks:       make(map[string]Block),
		appointments: make(map[string]Appointment),
		payments:     make(map[string]PaymentRecord),
		slots:        make(map[slotKey]string),
	}
}

func (s *MemoryStore) WorkingHoursFor(_ context.Context, clinicID string, weekday time.Weekday) (*WorkingHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wh, ok := s.hours[clinicID][weekday]
	if !ok {
		return nil, nil
	}
	return &wh, nil
}

func (s *MemoryStore) ListWorkingHours(_ context.Context, clinicID string) ([]WorkingHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WorkingHours, 0, len(s.hours[clinicID]))
	for _, wh := range s.hours[clinicID] {
		out = append(out, wh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func (s *MemoryStore) UpsertWorkingHours(_ context.Context, clinicID string, hours []WorkingHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay, ok := s.hours[clinicID]
	if !ok {
		byDay = make(map[time.Weekday]WorkingHours)
		s.hours[clinicID] = byDay
	}
	for _, wh := range hours {
		wh.ClinicID = clinicID
		byDay[wh.Weekday] = wh
	}
	return nil
}

func (s *MemoryStore) BlocksOn(_ context.Context, clinicID string, date Date) ([]Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Block
	for _, b := range s.blocks {
		if b.ClinicID == clinicID && b.AppliesOn(date) {
			out = append(out, b)
		}
	}
	sortBlocks(out)
	return out, nil
}

func (s *MemoryStore) ListBlocks(_ context.Context, clinicID string) ([]Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Block
	for _, b := range s.blocks {
		if b.ClinicID == clinicID {
			out = append(out, b)
		}
	}
	sortBlocks(out)
	return out, nil
}

func (s *MemoryStore) InsertBlocks(_ context.Context, blocks []Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blocks {
		s.blocks[b.ID] = b
	}
	return nil
}

func (s *MemoryStore) DeleteBlock(_ context.Context, clinicID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok || b.ClinicID != clinicID {
		return ErrNotFound
	}
	delete(s.blocks, id)
	return nil
}

func (s *MemoryStore) ActiveAppointmentsOn(_ context.Context, clinicID string, date Date) ([]Appointment, error) {
	return s.appointmentsOn(clinicID, date, true), nil
}

func (s *MemoryStore) ListAppointments(_ context.Context, clinicID string, date Date) ([]Appointment, error) {
	return s.appointmentsOn(clinicID, date, false), nil
}

func (s *MemoryStore) appointmentsOn(clinicID string, date Date, activeOnly bool) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appointments {
		if a.ClinicID != clinicID {
			continue
		}
		if !date.IsZero() && a.Date != date {
			continue
		}
		if activeOnly && !a.Active() {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Time().Before(out[j].Date.Time())
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func (s *MemoryStore) GetAppointment(_ context.Context, clinicID, id string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) CreateAppointment(_ context.Context, appt *Appointment, payment *PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.Active() {
		key := slotKey{clinicID: appt.ClinicID, date: appt.Date, time: appt.Time}
		if _, taken := s.slots[key]; taken {
			return ErrSlotTaken
		}
		s.slots[key] = appt.ID
	}
	s.appointments[appt.ID] = *appt
	if payment != nil {
		s.payments[payment.AppointmentID] = *payment
	}
	return nil
}

func (s *MemoryStore) UpdateAppointment(_ context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.appointments[appt.ID]
	if !ok || prev.ClinicID != appt.ClinicID {
		return ErrNotFound
	}
	newKey := slotKey{clinicID: appt.ClinicID, date: appt.Date, time: appt.Time}
	if appt.Active() {
		if holder, taken := s.slots[newKey]; taken && holder != appt.ID {
			return ErrSlotTaken
		}
	}
	if prev.Active() {
		delete(s.slots, slotKey{clinicID: prev.ClinicID, date: prev.Date, time: prev.Time})
	}
	if appt.Active() {
		s.slots[newKey] = appt.ID
	}
	s.appointments[appt.ID] = *appt
	return nil
}

func (s *MemoryStore) DeleteAppointment(_ context.Context, clinicID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.ClinicID != clinicID {
		return ErrNotFound
	}
	if a.Active() {
		delete(s.slots, slotKey{clinicID: a.ClinicID, date: a.Date, time: a.Time})
	}
	delete(s.appointments, id)
	delete(s.payments, id)
	return nil
}

func (s *MemoryStore) PaymentForAppointment(_ context.Context, clinicID, appointmentID string) (*PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[appointmentID]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	return &p, nil
}

func sortBlocks(blocks []Block) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Start != blocks[j].Start {
			return blocks[i].Start < blocks[j].Start
		}
		return blocks[i].ID < blocks[j].ID
	})
}
