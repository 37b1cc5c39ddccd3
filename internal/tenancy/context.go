package tenancy

import "context"

type ctxKey string

const clinicKey ctxKey = "clinic.clinic_id"

// WithClinicID stores the authenticated clinic id in context. Only the HTTP
// edge reads it back; core packages take the clinic id as a parameter.
func WithClinicID(ctx context.Context, clinicID string) context.Context {
	return context.WithValue(ctx, clinicKey, clinicID)
}

// ClinicIDFromContext extracts the clinic id if present.
func ClinicIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(clinicKey)
	if val == nil {
		return "", false
	}
	clinicID, ok := val.(string)
	return clinicID, ok && clinicID != ""
}
