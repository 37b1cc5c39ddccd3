package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-engine/internal/patients"
	"github.com/wolfman30/clinic-booking-engine/internal/procedures"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

var schedulingTracer = otel.Tracer("clinic.internal.scheduling")

// PatientLookup confirms a patient belongs to a clinic.
type PatientLookup interface {
	ByID(ctx context.Context, clinicID string, id int64) (*patients.Patient, error)
}

// ProcedureLookup reads the live procedure price for a snapshot.
type ProcedureLookup interface {
	ByID(ctx context.Context, clinicID string, id int64) (*procedures.Procedure, error)
}

// CreateAppointmentInput is everything needed to book one slot.
type CreateAppointmentInput struct {
	ClinicID    string            `json:"clinic_id" validate:"required"`
	PatientID   int64             `json:"patient_id" validate:"gt=0"`
	Date        Date              `json:"date"`
	Time        Clock             `json:"time"`
	Duration    int               `json:"duration" validate:"gte=0,lte=720"`
	ProcedureID *int64            `json:"procedure_id,omitempty" validate:"omitempty,gt=0"`
	Notes       string            `json:"notes" validate:"max=2000"`
	Origin      Origin            `json:"origin" validate:"omitempty,oneof=direct conversational"`
	Status      AppointmentStatus `json:"status" validate:"omitempty,oneof=pending confirmed"`
}

// AppointmentPatch holds the fields an update may change. Nil means unchanged.
type AppointmentPatch struct {
	Date     *Date              `json:"date,omitempty"`
	Time     *Clock             `json:"time,omitempty"`
	Duration *int               `json:"duration,omitempty" validate:"omitempty,gt=0,lte=720"`
	Status   *AppointmentStatus `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed cancelled"`
	Notes    *string            `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// Orchestrator creates, updates and removes appointments and blocks. Both the
// dashboard and the conversational capabilities book through it.
type Orchestrator struct {
	store      Store
	validator  *Validator
	patients   PatientLookup
	procedures ProcedureLookup
	step       int
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
	now        func() time.Time
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

func WithBookingMetrics(m *metrics.BookingMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(logger *logging.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSlotStep sets the default duration for bookings without a procedure.
func WithSlotStep(minutes int) OrchestratorOption {
	return func(o *Orchestrator) {
		if minutes > 0 {
			o.step = minutes
		}
	}
}

func WithNow(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(store Store, patientDir PatientLookup, catalog ProcedureLookup, opts ...OrchestratorOption) *Orchestrator {
	if store == nil {
		panic("scheduling: store cannot be nil")
	}
	if patientDir == nil || catalog == nil {
		panic("scheduling: patient directory and procedure catalog are required")
	}
	o := &Orchestrator{
		store:      store,
		validator:  NewValidator(store),
		patients:   patientDir,
		procedures: catalog,
		step:       DefaultSlotStep,
		logger:     logging.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validator exposes the shared conflict validator.
func (o *Orchestrator) Validator() *Validator { return o.validator }

// Create books a slot. The Validator runs first for a precise reason; the
// store's uniqueness constraint settles races between concurrent callers.
func (o *Orchestrator) Create(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.create_appointment")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.clinic_id", in.ClinicID),
		attribute.String("clinic.origin", string(in.Origin)),
	)

	if in.Origin == "" {
		in.Origin = OriginDirect
	}
	if in.Status == "" {
		in.Status = StatusConfirmed
	}
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	if _, err := o.patients.ByID(ctx, in.ClinicID, in.PatientID); err != nil {
		if errors.Is(err, patients.ErrPatientNotFound) {
			return nil, &NotFoundError{Resource: "patient"}
		}
		span.RecordError(err)
		return nil, internal("load patient", err)
	}

	var proc *procedures.Procedure
	if in.ProcedureID != nil {
		p, err := o.procedures.ByID(ctx, in.ClinicID, *in.ProcedureID)
		if err != nil {
			if errors.Is(err, procedures.ErrProcedureNotFound) {
				return nil, &NotFoundError{Resource: "procedure"}
			}
			span.RecordError(err)
			return nil, internal("load procedure", err)
		}
		proc = p
	}

	duration := in.Duration
	if duration == 0 {
		duration = o.step
		if proc != nil && proc.DefaultDuration > 0 {
			duration = proc.DefaultDuration
		}
	}

	if err := o.validator.Validate(ctx, in.ClinicID, in.Date, in.Time, duration, ""); err != nil {
		o.observeConflict(err)
		return nil, err
	}

	now := o.now()
	appt := &Appointment{
		ID:          uuid.NewString(),
		ClinicID:    in.ClinicID,
		PatientID:   in.PatientID,
		Date:        in.Date,
		Time:        in.Time,
		Duration:    duration,
		ProcedureID: in.ProcedureID,
		Status:      in.Status,
		Notes:       in.Notes,
		Origin:      in.Origin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var payment *PaymentRecord
	if proc != nil {
		payment = &PaymentRecord{
			ID:            uuid.NewString(),
			ClinicID:      in.ClinicID,
			AppointmentID: appt.ID,
			ProcedureID:   proc.ID,
			ProcedureName: proc.Name,
			AmountCents:   proc.PriceCents,
			Status:        "pending",
			CreatedAt:     now,
		}
	}

	if err := o.store.CreateAppointment(ctx, appt, payment); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			conflict := &ConflictError{Reason: ConflictAppointment}
			o.observeConflict(conflict)
			return nil, conflict
		}
		span.RecordError(err)
		return nil, internal("create appointment", err)
	}

	o.metrics.ObserveCreated(string(appt.Origin))
	o.logger.Info("appointment created",
		"clinic_id", appt.ClinicID,
		"appointment_id", appt.ID,
		"date", appt.Date.String(),
		"time", appt.Time.String(),
		"origin", appt.Origin,
		"payment_snapshot", payment != nil,
	)
	return appt, nil
}

// Update applies a patch. Moving the appointment, changing its length or
// reviving a cancelled one re-runs the Validator against the new slot.
func (o *Orchestrator) Update(ctx context.Context, clinicID, id string, patch AppointmentPatch) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.update_appointment")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.clinic_id", clinicID), attribute.String("clinic.appointment_id", id))

	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	current, err := o.store.GetAppointment(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "appointment"}
		}
		return nil, internal("load appointment", err)
	}

	next := *current
	if patch.Date != nil {
		next.Date = *patch.Date
	}
	if patch.Time != nil {
		next.Time = *patch.Time
	}
	if patch.Duration != nil {
		next.Duration = *patch.Duration
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.Notes != nil {
		next.Notes = *patch.Notes
	}

	moved := next.Date != current.Date || next.Time != current.Time || next.Duration != current.Duration
	revived := !current.Active() && next.Active()
	if next.Active() && (moved || revived) {
		if err := o.validator.Validate(ctx, clinicID, next.Date, next.Time, next.Duration, id); err != nil {
			o.observeConflict(err)
			return nil, err
		}
	}

	next.UpdatedAt = o.now()
	if err := o.store.UpdateAppointment(ctx, &next); err != nil {
		switch {
		case errors.Is(err, ErrSlotTaken):
			conflict := &ConflictError{Reason: ConflictAppointment}
			o.observeConflict(conflict)
			return nil, conflict
		case errors.Is(err, ErrNotFound):
			return nil, &NotFoundError{Resource: "appointment"}
		}
		span.RecordError(err)
		return nil, internal("update appointment", err)
	}

	o.logger.Info("appointment updated", "clinic_id", clinicID, "appointment_id", id, "moved", moved, "status", next.Status)
	return &next, nil
}

// Delete hard-deletes an appointment.
func (o *Orchestrator) Delete(ctx context.Context, clinicID, id string) error {
	if err := o.store.DeleteAppointment(ctx, clinicID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &NotFoundError{Resource: "appointment"}
		}
		return internal("delete appointment", err)
	}
	o.logger.Info("appointment deleted", "clinic_id", clinicID, "appointment_id", id)
	return nil
}

func (o *Orchestrator) Get(ctx context.Context, clinicID, id string) (*Appointment, error) {
	appt, err := o.store.GetAppointment(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "appointment"}
		}
		return nil, internal("load appointment", err)
	}
	return appt, nil
}

// List returns a clinic's appointments, optionally restricted to one date.
func (o *Orchestrator) List(ctx context.Context, clinicID string, date Date) ([]Appointment, error) {
	appts, err := o.store.ListAppointments(ctx, clinicID, date)
	if err != nil {
		return nil, internal("list appointments", err)
	}
	return appts, nil
}

// Payment returns the price snapshot taken when the appointment was booked.
func (o *Orchestrator) Payment(ctx context.Context, clinicID, appointmentID string) (*PaymentRecord, error) {
	p, err := o.store.PaymentForAppointment(ctx, clinicID, appointmentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "payment record"}
		}
		return nil, internal("load payment record", err)
	}
	return p, nil
}

func (o *Orchestrator) observeConflict(err error) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		o.metrics.ObserveConflict(string(ce.Reason))
	}
}

func validateCreate(in CreateAppointmentInput) error {
	verr := &ValidationError{}
	checkStruct(in, verr)
	if in.Date.IsZero() {
		verr.Add("date", "is required")
	}
	if !in.Time.Valid() {
		verr.Add("time", "must be between 00:00 and 23:59")
	}
	return verr.OrNil()
}

func validatePatch(p AppointmentPatch) error {
	verr := &ValidationError{}
	checkStruct(p, verr)
	if p.Date != nil && p.Date.IsZero() {
		verr.Add("date", "is required")
	}
	if p.Time != nil && !p.Time.Valid() {
		verr.Add("time", "must be between 00:00 and 23:59")
	}
	return verr.OrNil()
}
