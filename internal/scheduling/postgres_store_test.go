package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return newPostgresStoreWithDB(mock), mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func sampleAppointment() *Appointment {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &Appointment{
		ID:        "8f0c1f9e-4c43-4d1c-9a55-2f1b1f1c0a01",
		ClinicID:  clinicA,
		PatientID: 7,
		Date:      Date{Year: 2024, Month: time.June, Day: 10},
		Time:      NewClock(14, 0),
		Duration:  30,
		Status:    StatusConfirmed,
		Origin:    OriginConversational,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresStore_CreateAppointmentUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	appt := sampleAppointment()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(anyArgs(12)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_slot_uniq"})
	mock.ExpectRollback()

	err := store.CreateAppointment(context.Background(), appt, nil)
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_CreateAppointmentOtherUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(anyArgs(12)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"})
	mock.ExpectRollback()

	err := store.CreateAppointment(context.Background(), sampleAppointment(), nil)
	if err == nil || errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected a plain storage error, got %v", err)
	}
}

func TestPostgresStore_CreateAppointmentWritesPaymentAndOutbox(t *testing.T) {
	store, mock := newMockStore(t)
	appt := sampleAppointment()
	procID := int64(3)
	appt.ProcedureID = &procID
	payment := &PaymentRecord{
		ID:            "3c1d2a57-1f0e-4d4e-8a43-7d6b9a0f2b11",
		ClinicID:      clinicA,
		AppointmentID: appt.ID,
		ProcedureID:   procID,
		ProcedureName: "Consulta",
		AmountCents:   15000,
		Status:        "pending",
		CreatedAt:     appt.CreatedAt,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(appt.ID, clinicA, int64(7), appt.Date.Time(), toPGTime(appt.Time), 30, appt.ProcedureID,
			"confirmed", "", "conversational", appt.CreatedAt, appt.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO payment_records").
		WithArgs(payment.ID, clinicA, appt.ID, procID, "Consulta", int64(15000), "pending", payment.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), clinicA, "appointment.created.v1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := store.CreateAppointment(context.Background(), appt, payment); err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_UpdateAppointmentMapsErrors(t *testing.T) {
	store, mock := newMockStore(t)
	appt := sampleAppointment()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(anyArgs(8)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_slot_uniq"})
	if err := store.UpdateAppointment(context.Background(), appt); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}

	mock.ExpectExec("UPDATE appointments").WithArgs(anyArgs(8)...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := store.UpdateAppointment(context.Background(), appt); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_GetAppointmentInvalidIDIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs("not-a-uuid", clinicA).
		WillReturnError(&pgconn.PgError{Code: "22P02"})

	if _, err := store.GetAppointment(context.Background(), clinicA, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_ActiveAppointmentsOn(t *testing.T) {
	store, mock := newMockStore(t)
	date := Date{Year: 2024, Month: time.June, Day: 10}
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	rows := mock.NewRows([]string{"id", "clinic_id", "patient_id", "date", "time", "duration", "procedure_id", "status", "notes", "origin", "created_at", "updated_at"}).
		AddRow("a1", clinicA, int64(7), date.Time(), toPGTime(NewClock(9, 30)), 45, (*int64)(nil), "confirmed", "", "direct", created, created)
	mock.ExpectQuery("FROM appointments").WithArgs(clinicA, date.Time()).WillReturnRows(rows)

	appts, err := store.ActiveAppointmentsOn(context.Background(), clinicA, date)
	if err != nil {
		t.Fatalf("ActiveAppointmentsOn: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(appts))
	}
	got := appts[0]
	if got.Date != date || got.Time != NewClock(9, 30) || got.Duration != 45 || got.ProcedureID != nil {
		t.Fatalf("unexpected appointment %+v", got)
	}
}

func TestPostgresStore_WorkingHoursFor(t *testing.T) {
	store, mock := newMockStore(t)

	rows := mock.NewRows([]string{"weekday", "open_time", "close_time", "active"}).
		AddRow(1, toPGTime(NewClock(8, 0)), toPGTime(NewClock(18, 0)), true)
	mock.ExpectQuery("FROM working_hours").WithArgs(clinicA, 1).WillReturnRows(rows)

	wh, err := store.WorkingHoursFor(context.Background(), clinicA, time.Monday)
	if err != nil {
		t.Fatalf("WorkingHoursFor: %v", err)
	}
	if wh == nil || wh.Open != NewClock(8, 0) || wh.Close != NewClock(18, 0) || !wh.Active {
		t.Fatalf("unexpected hours %+v", wh)
	}

	mock.ExpectQuery("FROM working_hours").WithArgs(clinicA, 0).
		WillReturnRows(mock.NewRows([]string{"weekday", "open_time", "close_time", "active"}))
	wh, err = store.WorkingHoursFor(context.Background(), clinicA, time.Sunday)
	if err != nil || wh != nil {
		t.Fatalf("expected missing hours to read as nil, got %+v, %v", wh, err)
	}
}

func TestPostgresStore_BlocksOn(t *testing.T) {
	store, mock := newMockStore(t)
	date := Date{Year: 2024, Month: time.June, Day: 10}
	dow := 1
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	rows := mock.NewRows([]string{"id", "clinic_id", "title", "kind", "day_of_week", "specific_date", "start_time", "end_time", "created_at"}).
		AddRow("b1", clinicA, "Lunch", "recurring", &dow, (*time.Time)(nil), toPGTime(NewClock(12, 0)), toPGTime(NewClock(13, 0)), created)
	mock.ExpectQuery("FROM schedule_blocks").WithArgs(clinicA, 1, date.Time()).WillReturnRows(rows)

	blocks, err := store.BlocksOn(context.Background(), clinicA, date)
	if err != nil {
		t.Fatalf("BlocksOn: %v", err)
	}
	if len(blocks) != 1 || !blocks[0].AppliesOn(date) || !blocks[0].Covers(NewClock(12, 30)) {
		t.Fatalf("unexpected blocks %+v", blocks)
	}
}

func TestPGTimeRoundTrip(t *testing.T) {
	c := NewClock(17, 45)
	if got := fromPGTime(toPGTime(c)); got != c {
		t.Fatalf("expected %s, got %s", c, got)
	}
	if fromPGTime(pgtype.Time{}) != 0 {
		t.Fatal("expected invalid time to read as midnight")
	}
}
