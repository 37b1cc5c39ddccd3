package clinic

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wolfman30/clinic-booking-engine/internal/tenancy"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// ProfileStore is the subset of Store the handler needs.
type ProfileStore interface {
	Get(ctx context.Context, clinicID string) (*Profile, error)
	Set(ctx context.Context, p *Profile) error
}

// Handler provides HTTP endpoints for the clinic profile.
type Handler struct {
	store  ProfileStore
	logger *logging.Logger
}

// NewHandler creates a new clinic profile HTTP handler.
func NewHandler(store ProfileStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// GetProfile returns the profile for the authenticated clinic.
// GET /v1/clinic
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "missing clinic context"}`, http.StatusUnauthorized)
		return
	}

	p, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic profile", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		h.logger.Error("failed to encode clinic profile", "clinic_id", clinicID, "error", err)
	}
}

// UpdateProfileRequest is the request body for updating a profile. Omitted
// fields keep their stored value.
type UpdateProfileRequest struct {
	Name               string   `json:"name,omitempty"`
	Timezone           string   `json:"timezone,omitempty"`
	Phone              *string  `json:"phone,omitempty"`
	Address            *string  `json:"address,omitempty"`
	SMSNumbers         []string `json:"sms_numbers,omitempty"`
	Tone               string   `json:"tone,omitempty"`
	ProviderName       *string  `json:"provider_name,omitempty"`
	Greeting           *string  `json:"greeting,omitempty"`
	NotificationEmails []string `json:"notification_emails,omitempty"`
	HandoffAlerts      *bool    `json:"handoff_alerts,omitempty"`
	Policies           []string `json:"policies,omitempty"`
}

// UpdateProfile merges the request into the stored profile.
// PUT /v1/clinic
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "missing clinic context"}`, http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	p, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic profile", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Timezone != "" {
		p.Timezone = req.Timezone
	}
	if req.Phone != nil {
		p.Phone = *req.Phone
	}
	if req.Address != nil {
		p.Address = *req.Address
	}
	if req.SMSNumbers != nil {
		p.SMSNumbers = req.SMSNumbers
	}
	if req.Tone != "" {
		p.Tone = req.Tone
	}
	if req.ProviderName != nil {
		p.ProviderName = *req.ProviderName
	}
	if req.Greeting != nil {
		p.Greeting = *req.Greeting
	}
	if req.NotificationEmails != nil {
		p.NotificationEmails = req.NotificationEmails
	}
	if req.HandoffAlerts != nil {
		p.HandoffAlerts = *req.HandoffAlerts
	}
	if req.Policies != nil {
		p.Policies = req.Policies
	}

	if err := h.store.Set(r.Context(), p); err != nil {
		h.logger.Error("failed to save clinic profile", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "failed to save profile"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("clinic profile updated", "clinic_id", clinicID, "name", p.Name)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		h.logger.Error("failed to encode clinic profile", "clinic_id", clinicID, "error", err)
	}
}
