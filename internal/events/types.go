package events

import "time"

// Event type names written to the outbox.
const (
	TypeAppointmentCreated = "appointment.created.v1"
)

// AppointmentCreatedV1 announces a new booking to downstream consumers such
// as the financial module.
type AppointmentCreatedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	ClinicID      string    `json:"clinic_id"`
	PatientID     int64     `json:"patient_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Duration      int       `json:"duration"`
	Origin        string    `json:"origin"`
	ProcedureID   *int64    `json:"procedure_id,omitempty"`
	ProcedureName string    `json:"procedure_name,omitempty"`
	AmountCents   *int64    `json:"amount_cents,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
