package scheduling

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Storage-level sentinels. Stores return these; the Orchestrator translates
// them into the typed errors below.
var (
	ErrNotFound  = errors.New("scheduling: not found")
	ErrSlotTaken = errors.New("scheduling: slot already booked")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for malformed or missing input, before any
// persistence is attempted.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "scheduling: invalid input: " + strings.Join(parts, "; ")
}

// Add records a field failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it carries at least one field error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// NotFoundError covers both missing and foreign-tenant resources; callers
// cannot tell the two apart.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("scheduling: %s not found", e.Resource)
}

// ConflictReason says which rule rejected a slot.
type ConflictReason string

const (
	ConflictClosed      ConflictReason = "closed"
	ConflictBlock       ConflictReason = "block"
	ConflictAppointment ConflictReason = "appointment"
)

// ConflictError reports that a slot cannot be booked.
type ConflictError struct {
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scheduling: slot unavailable (%s)", e.Reason)
}

// UpstreamError wraps a language-model or messaging-gateway failure. Its
// message is never shown to patients.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// InternalError wraps an unexpected storage failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("scheduling: %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

func internal(op string, err error) error {
	return &InternalError{Op: op, Err: err}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// HTTPStatus maps the error taxonomy onto response codes.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		ue *UpstreamError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
