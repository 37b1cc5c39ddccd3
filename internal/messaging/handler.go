package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/internal/http/middleware"
	"github.com/wolfman30/clinic-booking-engine/internal/patients"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

var webhookTracer = otel.Tracer("clinic.internal.messaging.webhook")

const (
	providerTwilio = "twilio"
	providerTelnyx = "telnyx"

	publishTimeout  = 3 * time.Second
	maxWebhookBytes = 64 << 10
	emptyTwiML      = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

type inboundPublisher interface {
	EnqueueInbound(ctx context.Context, jobID string, msg conversation.InboundMessage, opts ...conversation.PublishOption) (string, error)
}

// NumberResolver maps the clinic's SMS number to its clinic id.
type NumberResolver interface {
	ClinicForNumber(ctx context.Context, number string) (string, error)
}

// ProcessedTracker records provider message ids so redelivered webhooks
// are not answered twice.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, messageID string) (bool, error)
}

// WebhookConfig holds the optional webhook protections.
type WebhookConfig struct {
	// TwilioAuthToken enables X-Twilio-Signature validation when set.
	TwilioAuthToken string
	// TelnyxWebhookSecret enables Telnyx-Signature validation when set.
	TelnyxWebhookSecret string
	// RequireSignatures rejects webhooks from a provider whose secret is
	// not configured instead of accepting them unsigned.
	RequireSignatures bool
	// RatePerMinute caps inbound messages per sender phone. Zero disables it.
	RatePerMinute int
}

// WebhookHandler accepts inbound SMS from the gateways and queues a
// conversation turn for each message.
type WebhookHandler struct {
	publisher   inboundPublisher
	numbers     NumberResolver
	processed   ProcessedTracker
	twilioToken string
	telnyxKey   string
	signedOnly  bool
	limiter     *middleware.KeyedLimiter
	logger      *logging.Logger
	now         func() time.Time
}

// NewWebhookHandler wires the handler. numbers and processed may be nil.
func NewWebhookHandler(publisher inboundPublisher, numbers NumberResolver, processed ProcessedTracker, cfg WebhookConfig, logger *logging.Logger) *WebhookHandler {
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		publisher:   publisher,
		numbers:     numbers,
		processed:   processed,
		twilioToken: cfg.TwilioAuthToken,
		telnyxKey:   cfg.TelnyxWebhookSecret,
		signedOnly:  cfg.RequireSignatures,
		limiter:     middleware.PerMinute(cfg.RatePerMinute),
		logger:      logger,
		now:         time.Now,
	}
}

// inboundSMS is the provider-neutral view of a webhook payload.
type inboundSMS struct {
	provider  string
	messageID string
	from      string
	to        string
	text      string
}

// TwilioWebhook handles POST /webhooks/sms/{clinicID}.
func (h *WebhookHandler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	if h.twilioToken == "" && h.signedOnly {
		h.logger.Warn("twilio webhook rejected: auth token not configured")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.twilioToken != "" && !ValidateTwilioSignature(r, h.twilioToken, buildAbsoluteURL(r)) {
		h.logger.Warn("invalid twilio signature")
		span.RecordError(errors.New("invalid twilio signature"))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	msg := inboundSMS{
		provider:  providerTwilio,
		messageID: webhook.MessageSid,
		from:      webhook.From,
		to:        webhook.To,
		text:      webhook.Body,
	}
	status := h.accept(ctx, msg, chi.URLParam(r, "clinicID"))
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

type telnyxEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			ID   string `json:"id"`
			Text string `json:"text"`
			From struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
			To []struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"to"`
			Direction string `json:"direction"`
		} `json:"payload"`
	} `json:"data"`
}

// TelnyxWebhook handles POST /webhooks/telnyx. Only message.received events
// start a turn; delivery receipts are acknowledged and dropped.
func (h *WebhookHandler) TelnyxWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.telnyx.webhook")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if h.telnyxKey != "" || h.signedOnly {
		err := VerifyTelnyxSignature(h.telnyxKey, r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body, h.now(), DefaultTelnyxSignatureSkew)
		if err != nil {
			h.logger.Warn("invalid telnyx webhook signature", "error", err)
			span.RecordError(err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}
	var env telnyxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.logger.Error("failed to parse telnyx webhook", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if env.Data.EventType != "message.received" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	msg := inboundSMS{
		provider:  providerTelnyx,
		messageID: env.Data.Payload.ID,
		from:      env.Data.Payload.From.PhoneNumber,
		text:      env.Data.Payload.Text,
	}
	if len(env.Data.Payload.To) > 0 {
		msg.to = env.Data.Payload.To[0].PhoneNumber
	}
	if status := h.accept(ctx, msg, ""); status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// accept validates, deduplicates and enqueues one message. It returns the
// HTTP status to answer the gateway with.
func (h *WebhookHandler) accept(ctx context.Context, in inboundSMS, pathClinicID string) int {
	from := patients.NormalizePhone(in.from)
	to := patients.NormalizePhone(in.to)
	text := strings.TrimSpace(in.text)
	if in.messageID == "" || from == "" || text == "" {
		h.logger.Warn("inbound sms missing required fields", "provider", in.provider)
		return http.StatusBadRequest
	}

	clinicID, err := h.resolveClinic(ctx, to, pathClinicID)
	if err != nil {
		h.logger.Warn("inbound sms for unknown clinic", "provider", in.provider, "error", err)
		return http.StatusNotFound
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("clinic.clinic_id", clinicID))
	logger := h.logger.With("clinic_id", clinicID, "provider", in.provider, "message_id", in.messageID)

	if !h.limiter.Allow(clinicID + ":" + from) {
		logger.Warn("inbound sms rate limited")
		return http.StatusTooManyRequests
	}

	if h.processed != nil {
		seen, err := h.processed.AlreadyProcessed(ctx, in.provider, in.messageID)
		if err != nil {
			logger.Error("processed lookup failed", "error", err)
		} else if seen {
			logger.Info("duplicate inbound sms ignored")
			return http.StatusOK
		}
	}

	msg := conversation.InboundMessage{
		ClinicID:  clinicID,
		Phone:     from,
		To:        to,
		Text:      text,
		MessageID: in.messageID,
		Timestamp: h.now().UTC(),
	}
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	jobID, err := h.publisher.EnqueueInbound(publishCtx, fmt.Sprintf("%s:%s", in.provider, in.messageID), msg)
	if err != nil {
		logger.Error("failed to enqueue conversation turn", "error", err)
		return http.StatusInternalServerError
	}

	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(ctx, in.provider, in.messageID); err != nil {
			logger.Error("failed to mark message processed", "error", err)
		}
	}
	logger.Info("inbound sms queued", "job_id", jobID)
	return http.StatusOK
}

func (h *WebhookHandler) resolveClinic(ctx context.Context, to, pathClinicID string) (string, error) {
	if h.numbers != nil && to != "" {
		clinicID, err := h.numbers.ClinicForNumber(ctx, to)
		if err == nil && clinicID != "" {
			return clinicID, nil
		}
		if err != nil && !errors.Is(err, clinic.ErrUnknownNumber) {
			h.logger.Error("clinic number lookup failed", "error", err)
		}
	}
	if id := strings.TrimSpace(pathClinicID); id != "" {
		return id, nil
	}
	return "", clinic.ErrUnknownNumber
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
