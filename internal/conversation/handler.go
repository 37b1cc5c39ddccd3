package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking-engine/internal/tenancy"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// handoffReleaser is satisfied by *SessionManager.
type handoffReleaser interface {
	ReleaseHandoff(ctx context.Context, clinicID, phone string) error
}

// Handler exposes staff-facing conversation endpoints.
type Handler struct {
	releaser handoffReleaser
	jobs     JobRecorder
	logger   *logging.Logger
}

// NewHandler creates a conversation handler. jobs may be nil when job
// tracking is disabled.
func NewHandler(releaser handoffReleaser, jobs JobRecorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		releaser: releaser,
		jobs:     jobs,
		logger:   logger,
	}
}

// ReleaseHandoff handles POST /v1/conversations/{phone}/release.
func (h *Handler) ReleaseHandoff(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing clinic context"})
		return
	}
	phone, err := url.PathUnescape(chi.URLParam(r, "phone"))
	if err != nil || phone == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid phone"})
		return
	}

	if err := h.releaser.ReleaseHandoff(r.Context(), clinicID, phone); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
			return
		}
		h.logger.Error("failed to release handoff", "clinic_id", clinicID, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to release conversation"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetJob handles GET /v1/conversations/jobs/{jobID}. Jobs of other clinics
// read as not found.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing clinic context"})
		return
	}
	if h.jobs == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "job tracking disabled"})
		return
	}

	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		h.logger.Error("failed to load job", "clinic_id", clinicID, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if job.ClinicID != clinicID {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
