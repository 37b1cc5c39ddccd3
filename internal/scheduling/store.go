package scheduling

import (
	"context"
	"time"
)

// ScheduleReader is the read side used by the Resolver and Validator.
type ScheduleReader interface {
	// WorkingHoursFor returns nil, nil when the clinic has no row for weekday.
	WorkingHoursFor(ctx context.Context, clinicID string, weekday time.Weekday) (*WorkingHours, error)
	// BlocksOn returns recurring blocks for the date's weekday and specific
	// blocks for the date itself.
	BlocksOn(ctx context.Context, clinicID string, date Date) ([]Block, error)
	// ActiveAppointmentsOn returns non-cancelled appointments ordered by time.
	ActiveAppointmentsOn(ctx context.Context, clinicID string, date Date) ([]Appointment, error)
}

// Store persists schedule data. Every method is scoped by clinic id.
type Store interface {
	ScheduleReader

	ListWorkingHours(ctx context.Context, clinicID string) ([]WorkingHours, error)
	UpsertWorkingHours(ctx context.Context, clinicID string, hours []WorkingHours) error

	ListBlocks(ctx context.Context, clinicID string) ([]Block, error)
	// InsertBlocks writes all rows or none.
	InsertBlocks(ctx context.Context, blocks []Block) error
	DeleteBlock(ctx context.Context, clinicID, id string) error

	GetAppointment(ctx context.Context, clinicID, id string) (*Appointment, error)
	ListAppointments(ctx context.Context, clinicID string, date Date) ([]Appointment, error)
	// CreateAppointment inserts the appointment and, when non-nil, its payment
	// snapshot atomically. It returns ErrSlotTaken when another non-cancelled
	// appointment already holds (clinic, date, time).
	CreateAppointment(ctx context.Context, appt *Appointment, payment *PaymentRecord) error
	UpdateAppointment(ctx context.Context, appt *Appointment) error
	DeleteAppointment(ctx context.Context, clinicID, id string) error

	PaymentForAppointment(ctx context.Context, clinicID, appointmentID string) (*PaymentRecord, error)
}
