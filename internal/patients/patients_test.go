package patients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+1 (555) 010-2000": "+15550102000",
		"5511987654321":     "+5511987654321",
		"  ":                "",
		"call me":           "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInMemoryDirectory_ScopesByClinic(t *testing.T) {
	dir := NewInMemoryDirectory()
	p := dir.Add("clinic-a", "Ana Souza", "+1 555 010 2000")

	got, err := dir.ByID(context.Background(), "clinic-a", p.ID)
	if err != nil {
		t.Fatalf("ByID returned error: %v", err)
	}
	if got.Phone != "+15550102000" {
		t.Fatalf("expected normalized phone, got %s", got.Phone)
	}

	if _, err := dir.ByID(context.Background(), "clinic-b", p.ID); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected not found across clinics, got %v", err)
	}
	if _, err := dir.ByPhone(context.Background(), "clinic-b", "+15550102000"); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected phone lookup scoped to clinic, got %v", err)
	}
}

func TestInMemoryDirectory_CreateLead(t *testing.T) {
	dir := NewInMemoryDirectory()
	lead, err := dir.CreateLead(context.Background(), "clinic-a", "", "555-010-3000")
	if err != nil {
		t.Fatalf("CreateLead returned error: %v", err)
	}
	if !lead.IsLead || lead.Name != "+5550103000" {
		t.Fatalf("expected lead named after phone, got %+v", lead)
	}

	found, err := dir.ByPhone(context.Background(), "clinic-a", "(555) 010-3000")
	if err != nil {
		t.Fatalf("ByPhone returned error: %v", err)
	}
	if found.ID != lead.ID {
		t.Fatalf("expected lead %d, got %d", lead.ID, found.ID)
	}

	if _, err := dir.CreateLead(context.Background(), "clinic-a", "x", "n/a"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected invalid phone error, got %v", err)
	}
}

func TestPostgresDirectory_ByIDScopesQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, clinic_id, name, phone, is_lead, created_at FROM patients").
		WithArgs(int64(7), "clinic-a").
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "name", "phone", "is_lead", "created_at"}).
			AddRow(int64(7), "clinic-a", "Ana Souza", "+15550102000", false, created))

	dir := newPostgresDirectoryWithDB(mock)
	p, err := dir.ByID(context.Background(), "clinic-a", 7)
	if err != nil {
		t.Fatalf("ByID returned error: %v", err)
	}
	if p.Name != "Ana Souza" || p.ClinicID != "clinic-a" {
		t.Fatalf("unexpected patient: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDirectory_NoRowsIsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, clinic_id, name, phone, is_lead, created_at FROM patients").
		WithArgs("clinic-a", "+15550102000").
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "name", "phone", "is_lead", "created_at"}))

	dir := newPostgresDirectoryWithDB(mock)
	if _, err := dir.ByPhone(context.Background(), "clinic-a", "+1 555 010 2000"); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}
