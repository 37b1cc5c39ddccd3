package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking-engine/internal/patients"
)

// ErrUnknownNumber is returned when no clinic claims an inbound number.
var ErrUnknownNumber = errors.New("clinic: number not assigned")

// Store persists clinic profiles in Redis, plus a number -> clinic index.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new clinic profile store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(clinicID string) string {
	return fmt.Sprintf("clinic:config:%s", clinicID)
}

func (s *Store) numberKey(number string) string {
	return fmt.Sprintf("clinic:number:%s", number)
}

// Get retrieves a clinic profile, returning the default if none is stored.
func (s *Store) Get(ctx context.Context, clinicID string) (*Profile, error) {
	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultProfile(clinicID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal profile: %w", err)
	}
	return &p, nil
}

// Set saves a profile and re-points its SMS numbers at the clinic. Numbers the
// clinic no longer lists are released.
func (s *Store) Set(ctx context.Context, p *Profile) error {
	if p == nil || strings.TrimSpace(p.ClinicID) == "" {
		return errors.New("clinic: profile requires clinic_id")
	}
	normalized := make([]string, 0, len(p.SMSNumbers))
	for _, n := range p.SMSNumbers {
		if v := patients.NormalizePhone(n); v != "" {
			normalized = append(normalized, v)
		}
	}
	p.SMSNumbers = normalized

	previous, err := s.Get(ctx, p.ClinicID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("clinic: marshal profile: %w", err)
	}

	keep := make(map[string]bool, len(p.SMSNumbers))
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(p.ClinicID), data, 0)
		for _, n := range p.SMSNumbers {
			keep[n] = true
			pipe.Set(ctx, s.numberKey(n), p.ClinicID, 0)
		}
		for _, n := range previous.SMSNumbers {
			if !keep[n] {
				pipe.Del(ctx, s.numberKey(n))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clinic: set profile: %w", err)
	}
	return nil
}

// ClinicForNumber resolves the clinic that owns an inbound SMS number.
func (s *Store) ClinicForNumber(ctx context.Context, number string) (string, error) {
	normalized := patients.NormalizePhone(number)
	if normalized == "" {
		return "", ErrUnknownNumber
	}
	clinicID, err := s.redis.Get(ctx, s.numberKey(normalized)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnknownNumber
	}
	if err != nil {
		return "", fmt.Errorf("clinic: lookup number: %w", err)
	}
	return clinicID, nil
}
