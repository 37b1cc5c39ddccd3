package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-engine/internal/patients"
	"github.com/wolfman30/clinic-booking-engine/internal/procedures"
	"github.com/wolfman30/clinic-booking-engine/internal/scheduling"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// Capability names as exposed to the model.
const (
	CapCheckAvailability = "checkAvailability"
	CapCreateAppointment = "createAppointment"
	CapTransferToHuman   = "transferToHuman"
	CapGetPatientInfo    = "getPatientInfo"
)

const (
	errSlotUnavailable = "slot unavailable"
	errCouldNotBook    = "could not book"
)

// AvailabilitySource is the read side of the booking core.
type AvailabilitySource interface {
	FreeTimes(ctx context.Context, clinicID string, date scheduling.Date) ([]scheduling.Clock, bool, error)
}

// AppointmentBooker is the write side of the booking core.
type AppointmentBooker interface {
	Create(ctx context.Context, in scheduling.CreateAppointmentInput) (*scheduling.Appointment, error)
}

// Capabilities executes model invocations against the booking core. Each
// result is a JSON object; failures are reported inside the object and never
// as Go errors, so the model can explain them to the patient.
type Capabilities struct {
	availability AvailabilitySource
	booker       AppointmentBooker
	patients     patients.Directory
	catalog      procedures.Catalog
	notifier     HandoffNotifier
	metrics      *metrics.ConversationMetrics
	logger       *logging.Logger
	now          func() time.Time
}

type CapabilityOption func(*Capabilities)

func WithHandoffNotifier(n HandoffNotifier) CapabilityOption {
	return func(c *Capabilities) { c.notifier = n }
}

func WithCapabilityMetrics(m *metrics.ConversationMetrics) CapabilityOption {
	return func(c *Capabilities) { c.metrics = m }
}

func WithCapabilityLogger(logger *logging.Logger) CapabilityOption {
	return func(c *Capabilities) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCapabilities(availability AvailabilitySource, booker AppointmentBooker, dir patients.Directory, catalog procedures.Catalog, opts ...CapabilityOption) *Capabilities {
	if availability == nil || booker == nil || dir == nil || catalog == nil {
		panic("conversation: capabilities require availability, booker, patients and catalog")
	}
	c := &Capabilities{
		availability: availability,
		booker:       booker,
		patients:     dir,
		catalog:      catalog,
		logger:       logging.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Specs returns the fixed capability schema offered on the first round.
func (c *Capabilities) Specs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        CapCheckAvailability,
			Description: "List the free appointment start times for one date at this clinic.",
			Params: []ToolParam{
				{Name: "date", Type: "string", Description: "Date as YYYY-MM-DD", Required: true},
			},
		},
		{
			Name:        CapCreateAppointment,
			Description: "Book an appointment for the patient in this conversation. Only use a time returned by checkAvailability.",
			Params: []ToolParam{
				{Name: "date", Type: "string", Description: "Date as YYYY-MM-DD", Required: true},
				{Name: "time", Type: "string", Description: "Start time as HH:MM (24h)", Required: true},
				{Name: "procedure_name", Type: "string", Description: "Procedure to book, if the patient named one"},
			},
		},
		{
			Name:        CapTransferToHuman,
			Description: "Hand the conversation to clinic staff. Automated replies stop until staff release it.",
			Params: []ToolParam{
				{Name: "reason", Type: "string", Description: "Why the patient needs a person", Required: true},
			},
		},
		{
			Name:        CapGetPatientInfo,
			Description: "Look up the patient record for the phone number in this conversation.",
		},
	}
}

// Execute runs one invocation. transferToHuman mutates sess.
func (c *Capabilities) Execute(ctx context.Context, sess *Session, inv ToolInvocation) json.RawMessage {
	var (
		result map[string]any
		status = "ok"
	)
	switch inv.Name {
	case CapCheckAvailability:
		result = c.checkAvailability(ctx, sess, inv.Args)
	case CapCreateAppointment:
		result = c.createAppointment(ctx, sess, inv.Args)
	case CapTransferToHuman:
		result = c.transferToHuman(ctx, sess, inv.Args)
	case CapGetPatientInfo:
		result = c.getPatientInfo(ctx, sess)
	default:
		status = "unknown"
		result = failure("unknown capability " + inv.Name)
	}
	if ok, present := result["success"].(bool); present && !ok && status == "ok" {
		status = "failed"
	}
	c.metrics.ObserveCapability(inv.Name, status)

	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("failed to encode capability result", "capability", inv.Name, "error", err)
		raw = []byte(`{"success":false,"error":"internal error"}`)
	}
	return raw
}

type checkAvailabilityArgs struct {
	Date string `json:"date"`
}

func (c *Capabilities) checkAvailability(ctx context.Context, sess *Session, raw json.RawMessage) map[string]any {
	var args checkAvailabilityArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure("invalid arguments")
	}
	date, err := scheduling.ParseDate(strings.TrimSpace(args.Date))
	if err != nil {
		return failure("invalid date, expected YYYY-MM-DD")
	}

	free, closed, err := c.availability.FreeTimes(ctx, sess.ClinicID, date)
	if err != nil {
		c.logger.Error("availability lookup failed", "session_id", sess.ID(), "date", date.String(), "error", err)
		return failure("could not check availability")
	}
	if closed {
		return map[string]any{"closed": true, "date": date.String()}
	}
	return map[string]any{"date": date.String(), "slots": clockStrings(free)}
}

type createAppointmentArgs struct {
	Date          string `json:"date"`
	Time          string `json:"time"`
	ProcedureName string `json:"procedure_name"`
}

func (c *Capabilities) createAppointment(ctx context.Context, sess *Session, raw json.RawMessage) map[string]any {
	var args createAppointmentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure("invalid arguments")
	}
	date, err := scheduling.ParseDate(strings.TrimSpace(args.Date))
	if err != nil {
		return failure("invalid date, expected YYYY-MM-DD")
	}
	at, err := scheduling.ParseClock(strings.TrimSpace(args.Time))
	if err != nil {
		return failure("invalid time, expected HH:MM")
	}

	// Re-read availability: the model may propose a time it never saw, or
	// one that was taken since.
	free, closed, err := c.availability.FreeTimes(ctx, sess.ClinicID, date)
	if err != nil {
		c.logger.Error("availability lookup failed", "session_id", sess.ID(), "error", err)
		return failure(errCouldNotBook)
	}
	if closed || !containsClock(free, at) {
		return failure(errSlotUnavailable)
	}

	input := scheduling.CreateAppointmentInput{
		ClinicID: sess.ClinicID,
		Date:     date,
		Time:     at,
		Origin:   scheduling.OriginConversational,
	}
	var procName string
	if name := strings.TrimSpace(args.ProcedureName); name != "" {
		proc, err := c.catalog.ByName(ctx, sess.ClinicID, name)
		if err != nil {
			if errors.Is(err, procedures.ErrProcedureNotFound) {
				return failure("unknown procedure " + name)
			}
			c.logger.Error("procedure lookup failed", "session_id", sess.ID(), "error", err)
			return failure(errCouldNotBook)
		}
		input.ProcedureID = &proc.ID
		procName = proc.Name
	}

	// Leads are only written once the request is known to be bookable.
	patient, err := c.patients.ByPhone(ctx, sess.ClinicID, sess.Phone)
	if errors.Is(err, patients.ErrPatientNotFound) {
		patient, err = c.patients.CreateLead(ctx, sess.ClinicID, "", sess.Phone)
	}
	if err != nil {
		c.logger.Error("patient lookup failed", "session_id", sess.ID(), "error", err)
		return failure(errCouldNotBook)
	}
	input.PatientID = patient.ID

	appt, err := c.booker.Create(ctx, input)
	if err != nil {
		if scheduling.IsConflict(err) {
			return failure(errSlotUnavailable)
		}
		c.logger.Error("conversational booking failed", "session_id", sess.ID(), "error", err)
		return failure(errCouldNotBook)
	}

	result := map[string]any{
		"success":        true,
		"appointment_id": appt.ID,
		"date":           appt.Date.String(),
		"time":           appt.Time.String(),
		"duration":       appt.Duration,
	}
	if procName != "" {
		result["procedure"] = procName
	}
	return result
}

type transferArgs struct {
	Reason string `json:"reason"`
}

func (c *Capabilities) transferToHuman(ctx context.Context, sess *Session, raw json.RawMessage) map[string]any {
	var args transferArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure("invalid arguments")
	}
	reason := strings.TrimSpace(args.Reason)
	if reason == "" {
		reason = "patient requested a person"
	}
	sess.HumanHandoff = true
	sess.HandoffReason = reason

	if c.notifier != nil {
		evt := HandoffEvent{
			ClinicID: sess.ClinicID,
			Phone:    sess.Phone,
			Reason:   reason,
			History:  append([]ChatMessage(nil), sess.History...),
			At:       c.now().UTC(),
		}
		if err := c.notifier.NotifyHandoff(ctx, evt); err != nil {
			c.logger.Warn("handoff notification failed", "session_id", sess.ID(), "error", err)
		}
	}
	c.logger.Info("session handed off", "session_id", sess.ID(), "reason", reason)
	return map[string]any{"success": true}
}

func (c *Capabilities) getPatientInfo(ctx context.Context, sess *Session) map[string]any {
	p, err := c.patients.ByPhone(ctx, sess.ClinicID, sess.Phone)
	if err != nil {
		if !errors.Is(err, patients.ErrPatientNotFound) {
			c.logger.Error("patient lookup failed", "session_id", sess.ID(), "error", err)
		}
		return map[string]any{"found": false}
	}
	return map[string]any{
		"found": true,
		"id":    p.ID,
		"name":  p.Name,
		"phone": p.Phone,
	}
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func clockStrings(clocks []scheduling.Clock) []string {
	out := make([]string, 0, len(clocks))
	for _, c := range clocks {
		out = append(out, c.String())
	}
	return out
}

func containsClock(clocks []scheduling.Clock, want scheduling.Clock) bool {
	for _, c := range clocks {
		if c == want {
			return true
		}
	}
	return false
}
