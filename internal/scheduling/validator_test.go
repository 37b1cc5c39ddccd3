package scheduling

import (
	"context"
	"errors"
	"testing"
)

type failingReader struct {
	ScheduleReader
	err error
}

func (r failingReader) BlocksOn(context.Context, string, Date) ([]Block, error) {
	return nil, r.err
}

func TestValidator_Order(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	monday := mustDate(t, "2024-06-10")

	if _, err := f.orch.CreateBlock(ctx, CreateBlockInput{
		ClinicID: clinicA, Kind: BlockRecurring, Days: []int{1},
		Start: mustClock(t, "12:00"), End: mustClock(t, "13:00"),
	}); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	if _, err := f.orch.Create(ctx, CreateAppointmentInput{
		ClinicID: clinicA, PatientID: f.patient.ID, Date: monday, Time: mustClock(t, "15:00"),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	cases := []struct {
		name string
		date string
		at   string
		dur  int
		want ConflictReason
	}{
		{name: "before opening", date: "2024-06-10", at: "07:30", dur: 30, want: ConflictClosed},
		{name: "at closing", date: "2024-06-10", at: "18:00", dur: 30, want: ConflictClosed},
		{name: "sunday", date: "2024-06-09", at: "10:00", dur: 30, want: ConflictClosed},
		{name: "inactive saturday", date: "2024-06-15", at: "10:00", dur: 30, want: ConflictClosed},
		{name: "inside block", date: "2024-06-10", at: "12:30", dur: 30, want: ConflictBlock},
		{name: "runs into block", date: "2024-06-10", at: "11:30", dur: 60, want: ConflictBlock},
		{name: "same start", date: "2024-06-10", at: "15:00", dur: 30, want: ConflictAppointment},
		{name: "free", date: "2024-06-10", at: "11:30", dur: 30},
		{name: "after block", date: "2024-06-10", at: "13:00", dur: 30},
		{name: "block is weekday specific", date: "2024-06-11", at: "12:00", dur: 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.orch.Validator().Validate(ctx, clinicA, mustDate(t, tc.date), mustClock(t, tc.at), tc.dur, "")
			if tc.want == "" {
				if err != nil {
					t.Fatalf("expected no conflict, got %v", err)
				}
				return
			}
			var ce *ConflictError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConflictError, got %v", err)
			}
			if ce.Reason != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, ce.Reason)
			}
		})
	}
}

func TestValidator_ClosedWinsOverBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.orch.CreateBlock(ctx, CreateBlockInput{
		ClinicID: clinicA, Kind: BlockRecurring, Days: []int{1},
		Start: mustClock(t, "06:00"), End: mustClock(t, "09:00"),
	}); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}

	err := f.orch.Validator().Validate(ctx, clinicA, mustDate(t, "2024-06-10"), mustClock(t, "07:00"), 30, "")
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.Reason != ConflictClosed {
		t.Fatalf("expected closed conflict, got %v", err)
	}
}

func TestValidator_ExcludesRescheduledAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := mustDate(t, "2024-06-12")

	appt, err := f.orch.Create(ctx, CreateAppointmentInput{
		ClinicID: clinicA, PatientID: f.patient.ID, Date: date, Time: mustClock(t, "10:00"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.orch.Validator().Validate(ctx, clinicA, date, mustClock(t, "10:00"), 30, appt.ID); err != nil {
		t.Fatalf("expected own appointment to be skipped, got %v", err)
	}
	if err := f.orch.Validator().Validate(ctx, clinicA, date, mustClock(t, "10:00"), 30, ""); !IsConflict(err) {
		t.Fatalf("expected conflict without exclusion, got %v", err)
	}
}

func TestValidator_StorageFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	v := NewValidator(failingReader{ScheduleReader: f.store, err: boom})

	err := v.Validate(context.Background(), clinicA, mustDate(t, "2024-06-10"), mustClock(t, "10:00"), 30, "")
	var ie *InternalError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InternalError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("expected wrapped storage error")
	}
	if HTTPStatus(err) != 500 {
		t.Fatalf("expected 500, got %d", HTTPStatus(err))
	}
}
