package scheduling

import "context"

// Validator decides whether one candidate booking may proceed. It never
// writes, so its answer can be stale by commit time; the store's uniqueness
// constraint is what actually prevents double booking.
type Validator struct {
	reader ScheduleReader
}

func NewValidator(reader ScheduleReader) *Validator {
	if reader == nil {
		panic("scheduling: schedule reader cannot be nil")
	}
	return &Validator{reader: reader}
}

// Validate checks, in order, working hours, blocks, then existing
// appointments at the exact same start. excludingID skips the appointment
// being rescheduled. It returns nil or a *ConflictError; storage failures come
// back as *InternalError.
func (v *Validator) Validate(ctx context.Context, clinicID string, date Date, at Clock, duration int, excludingID string) error {
	hours, err := v.reader.WorkingHoursFor(ctx, clinicID, date.Weekday())
	if err != nil {
		return internal("load working hours", err)
	}
	if !hours.Contains(at) {
		return &ConflictError{Reason: ConflictClosed}
	}

	blocks, err := v.reader.BlocksOn(ctx, clinicID, date)
	if err != nil {
		return internal("load blocks", err)
	}
	for i := range blocks {
		if blocks[i].Overlaps(at, duration) {
			return &ConflictError{Reason: ConflictBlock}
		}
	}

	appts, err := v.reader.ActiveAppointmentsOn(ctx, clinicID, date)
	if err != nil {
		return internal("load appointments", err)
	}
	for i := range appts {
		if appts[i].ID == excludingID || !appts[i].Active() {
			continue
		}
		if appts[i].Time == at {
			return &ConflictError{Reason: ConflictAppointment}
		}
	}
	return nil
}
