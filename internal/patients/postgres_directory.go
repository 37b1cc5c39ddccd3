package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory reads the clinic's patients table.
type PostgresDirectory struct {
	db rowQuerier
}

var _ Directory = (*PostgresDirectory)(nil)

// NewPostgresDirectory initializes a directory backed by pgxpool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresDirectory{db: pool}
}

func newPostgresDirectoryWithDB(db rowQuerier) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const patientColumns = `id, clinic_id, name, phone, is_lead, created_at`

func (d *PostgresDirectory) ByID(ctx context.Context, clinicID string, id int64) (*Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1 AND clinic_id = $2`
	return d.scanOne(d.db.QueryRow(ctx, query, id, clinicID))
}

// ByPhone returns the oldest patient registered with the phone number.
func (d *PostgresDirectory) ByPhone(ctx context.Context, clinicID, phone string) (*Patient, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}
	query := `SELECT ` + patientColumns + ` FROM patients WHERE clinic_id = $1 AND phone = $2 ORDER BY id LIMIT 1`
	return d.scanOne(d.db.QueryRow(ctx, query, clinicID, normalized))
}

func (d *PostgresDirectory) CreateLead(ctx context.Context, clinicID, name, phone string) (*Patient, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}
	if strings.TrimSpace(name) == "" {
		name = normalized
	}
	query := `
		INSERT INTO patients (clinic_id, name, phone, is_lead)
		VALUES ($1, $2, $3, TRUE)
		RETURNING ` + patientColumns
	p, err := d.scanOne(d.db.QueryRow(ctx, query, clinicID, strings.TrimSpace(name), normalized))
	if err != nil {
		return nil, fmt.Errorf("patients: create lead: %w", err)
	}
	return p, nil
}

func (d *PostgresDirectory) scanOne(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.ClinicID, &p.Name, &p.Phone, &p.IsLead, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: query failed: %w", err)
	}
	return &p, nil
}
