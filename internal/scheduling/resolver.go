package scheduling

import (
	"context"
	"fmt"
)

// DefaultSlotStep is the slot granularity in minutes.
const DefaultSlotStep = 30

// Slot is one candidate start time.
type Slot struct {
	Time      Clock `json:"time"`
	Available bool  `json:"available"`
}

// DayAvailability is the Resolver result for one date. Closed is a normal
// value distinct from a day with no free slots.
type DayAvailability struct {
	Date   Date   `json:"date"`
	Closed bool   `json:"closed"`
	Slots  []Slot `json:"slots,omitempty"`
}

// Free returns the available slot times in order.
func (d DayAvailability) Free() []Clock {
	var out []Clock
	for _, s := range d.Slots {
		if s.Available {
			out = append(out, s.Time)
		}
	}
	return out
}

// Has reports whether t is listed as available.
func (d DayAvailability) Has(t Clock) bool {
	for _, s := range d.Slots {
		if s.Time == t {
			return s.Available
		}
	}
	return false
}

// Resolver computes free slots for a clinic and date. It only reads.
type Resolver struct {
	reader ScheduleReader
	step   int
}

// NewResolver builds a Resolver stepping by step minutes; non-positive values
// fall back to DefaultSlotStep.
func NewResolver(reader ScheduleReader, step int) *Resolver {
	if reader == nil {
		panic("scheduling: schedule reader cannot be nil")
	}
	if step <= 0 {
		step = DefaultSlotStep
	}
	return &Resolver{reader: reader, step: step}
}

// Slots walks a cursor from open to close. A cursor point is unavailable when
// it falls inside any active appointment or applicable block. Intervals that
// run past closing only affect the cursor points that are actually visited.
func (r *Resolver) Slots(ctx context.Context, clinicID string, date Date) (DayAvailability, error) {
	result := DayAvailability{Date: date}

	hours, err := r.reader.WorkingHoursFor(ctx, clinicID, date.Weekday())
	if err != nil {
		return result, internal("load working hours", err)
	}
	if hours == nil || !hours.Active || hours.Close <= hours.Open {
		result.Closed = true
		return result, nil
	}

	appts, err := r.reader.ActiveAppointmentsOn(ctx, clinicID, date)
	if err != nil {
		return result, internal("load appointments", err)
	}
	blocks, err := r.reader.BlocksOn(ctx, clinicID, date)
	if err != nil {
		return result, internal("load blocks", err)
	}

	result.Slots = make([]Slot, 0, int(hours.Close-hours.Open)/r.step+1)
	for cursor := hours.Open; cursor < hours.Close; cursor = cursor.Add(r.step) {
		result.Slots = append(result.Slots, Slot{
			Time:      cursor,
			Available: !occupied(cursor, appts, blocks),
		})
	}
	return result, nil
}

// FreeTimes returns only the available times, and whether the clinic is
// closed that day.
func (r *Resolver) FreeTimes(ctx context.Context, clinicID string, date Date) ([]Clock, bool, error) {
	day, err := r.Slots(ctx, clinicID, date)
	if err != nil {
		return nil, false, err
	}
	return day.Free(), day.Closed, nil
}

func occupied(cursor Clock, appts []Appointment, blocks []Block) bool {
	for i := range appts {
		if appts[i].Active() && appts[i].Covers(cursor) {
			return true
		}
	}
	for i := range blocks {
		if blocks[i].Covers(cursor) {
			return true
		}
	}
	return false
}

func (d DayAvailability) String() string {
	if d.Closed {
		return fmt.Sprintf("%s closed", d.Date)
	}
	return fmt.Sprintf("%s %d/%d free", d.Date, len(d.Free()), len(d.Slots))
}
