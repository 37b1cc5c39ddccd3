package patients

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrPatientNotFound is returned when no patient matches within the clinic.
	ErrPatientNotFound = errors.New("patients: patient not found")

	// ErrInvalidPhone is returned when a phone number has no digits.
	ErrInvalidPhone = errors.New("patients: phone is required")
)

// Patient is the directory record the booking engine needs: a registered
// patient or a lead created from an inbound conversation.
type Patient struct {
	ID        int64     `json:"id"`
	ClinicID  string    `json:"-"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	IsLead    bool      `json:"is_lead"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory looks patients up inside one clinic. A patient belonging to
// another clinic is reported as ErrPatientNotFound.
type Directory interface {
	ByID(ctx context.Context, clinicID string, id int64) (*Patient, error)
	ByPhone(ctx context.Context, clinicID, phone string) (*Patient, error)
	CreateLead(ctx context.Context, clinicID, name, phone string) (*Patient, error)
}

// NormalizePhone returns an E.164-style "+digits" string, or "" when the
// input carries no digits.
func NormalizePhone(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}
