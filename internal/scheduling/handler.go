package scheduling

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking-engine/internal/tenancy"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// Handler serves the direct booking API used by the clinic dashboard.
type Handler struct {
	orch     *Orchestrator
	resolver *Resolver
	logger   *logging.Logger
}

// NewHandler creates a new scheduling handler.
func NewHandler(orch *Orchestrator, resolver *Resolver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orch: orch, resolver: resolver, logger: logger}
}

type errorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

type workingHoursRequest struct {
	Hours []WorkingHours `json:"hours"`
}

// GetAvailability handles GET /v1/availability?date=YYYY-MM-DD
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	date, err := ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, NewValidationError("date", "must be YYYY-MM-DD"))
		return
	}

	day, err := h.resolver.Slots(r.Context(), clinicID, date)
	if err != nil {
		h.logger.Error("failed to resolve availability", "clinic_id", clinicID, "date", date.String(), "error", err)
		h.writeError(w, err)
		return
	}
	if day.Closed {
		writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// CreateAppointment handles POST /v1/appointments
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var in CreateAppointmentInput
	if !h.decode(w, r, &in) {
		return
	}
	in.ClinicID = clinicID
	in.Origin = OriginDirect

	appt, err := h.orch.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// ListAppointments handles GET /v1/appointments?date=
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var date Date
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := ParseDate(raw)
		if err != nil {
			h.writeError(w, NewValidationError("date", "must be YYYY-MM-DD"))
			return
		}
		date = d
	}

	appts, err := h.orch.List(r.Context(), clinicID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if appts == nil {
		appts = []Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts, "count": len(appts)})
}

// GetAppointment handles GET /v1/appointments/{id}
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	appt, err := h.orch.Get(r.Context(), clinicID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// UpdateAppointment handles PATCH /v1/appointments/{id}
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var patch AppointmentPatch
	if !h.decode(w, r, &patch) {
		return
	}
	appt, err := h.orch.Update(r.Context(), clinicID, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// DeleteAppointment handles DELETE /v1/appointments/{id}
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	if err := h.orch.Delete(r.Context(), clinicID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPayment handles GET /v1/appointments/{id}/payment
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	payment, err := h.orch.Payment(r.Context(), clinicID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// CreateBlock handles POST /v1/blocks
func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var in CreateBlockInput
	if !h.decode(w, r, &in) {
		return
	}
	in.ClinicID = clinicID

	blocks, err := h.orch.CreateBlock(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, blocks)
}

// ListBlocks handles GET /v1/blocks
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	blocks, err := h.orch.ListBlocks(r.Context(), clinicID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if blocks == nil {
		blocks = []Block{}
	}
	writeJSON(w, http.StatusOK, blocks)
}

// DeleteBlock handles DELETE /v1/blocks/{id}
func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	if err := h.orch.DeleteBlock(r.Context(), clinicID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWorkingHours handles GET /v1/working-hours
func (h *Handler) GetWorkingHours(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	hours, err := h.orch.WorkingHours(r.Context(), clinicID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if hours == nil {
		hours = []WorkingHours{}
	}
	writeJSON(w, http.StatusOK, workingHoursRequest{Hours: hours})
}

// PutWorkingHours handles PUT /v1/working-hours
func (h *Handler) PutWorkingHours(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var req workingHoursRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.orch.SetWorkingHours(r.Context(), clinicID, req.Hours); err != nil {
		h.writeError(w, err)
		return
	}
	h.GetWorkingHours(w, r)
}

func (h *Handler) clinicID(w http.ResponseWriter, r *http.Request) (string, bool) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing clinic context"})
		return "", false
	}
	return clinicID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	err = dec.Decode(dst)
	if err == nil {
		return true
	}

	var (
		fe *FormatError
		te *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &fe):
		h.writeError(w, NewValidationError(formatErrorField(body, fe), fe.Hint()))
	case errors.As(err, &te) && te.Field != "":
		typ := te.Type
		if typ.Kind() == reflect.Pointer {
			typ = typ.Elem()
		}
		msg := "must be a " + typ.String()
		switch typ {
		case reflect.TypeOf(Date{}):
			msg = (&FormatError{Kind: "date"}).Hint()
		case reflect.TypeOf(Clock(0)):
			msg = (&FormatError{Kind: "time"}).Hint()
		}
		h.writeError(w, NewValidationError(te.Field, msg))
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
	}
	return false
}

var formatKeys = map[string]map[string]bool{
	"date": {"date": true, "specific_date": true},
	"time": {"time": true, "open": true, "close": true, "start_time": true, "end_time": true},
}

// formatErrorField finds the JSON path of the value that failed to parse.
// encoding/json does not attach field context to UnmarshalText errors.
func formatErrorField(body []byte, fe *FormatError) string {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fe.Kind
	}
	if path, ok := findFormatValue(doc, "", fe); ok {
		return path
	}
	return fe.Kind
}

func findFormatValue(node any, path string, fe *FormatError) (string, bool) {
	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			if s, ok := v[k].(string); ok && s == fe.Value && formatKeys[fe.Kind][k] {
				return child, true
			}
			if p, ok := findFormatValue(v[k], child, fe); ok {
				return p, true
			}
		}
	case []any:
		for _, item := range v {
			if p, ok := findFormatValue(item, path, fe); ok {
				return p, true
			}
		}
	}
	return "", false
}

// writeError maps the error taxonomy onto a response. Internal failures get a
// generic body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	resp := errorResponse{Error: err.Error()}

	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		resp = errorResponse{Error: "validation failed", Fields: ve.Fields}
	case status >= http.StatusInternalServerError:
		h.logger.Error("scheduling request failed", "status", status, "error", err)
		resp = errorResponse{Error: http.StatusText(status)}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
