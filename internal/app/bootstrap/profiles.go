package bootstrap

import (
	"context"

	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
)

// ProfileSource is what the prompt builder, the notifier and the webhook
// need from clinic configuration.
type ProfileSource interface {
	Get(ctx context.Context, clinicID string) (*clinic.Profile, error)
	ClinicForNumber(ctx context.Context, number string) (string, error)
}

// defaultProfiles stands in for the Redis store in local runs. Every clinic
// gets the default profile and numbers are never mapped, so webhooks rely on
// the clinic id in the path.
type defaultProfiles struct{}

func (defaultProfiles) Get(_ context.Context, clinicID string) (*clinic.Profile, error) {
	return clinic.DefaultProfile(clinicID), nil
}

func (defaultProfiles) ClinicForNumber(context.Context, string) (string, error) {
	return "", clinic.ErrUnknownNumber
}

// BuildProfileSource returns the Redis clinic store, or defaults when Redis
// is not configured.
func BuildProfileSource(store *clinic.Store) ProfileSource {
	if store == nil {
		return defaultProfiles{}
	}
	return store
}
