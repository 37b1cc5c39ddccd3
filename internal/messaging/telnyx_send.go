package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

var telnyxSendTracer = otel.Tracer("clinic.internal.messaging.telnyx_send")

const telnyxBaseURL = "https://api.telnyx.com"

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	messagingProfileID string
	baseURL            string
	httpClient         *http.Client
	logger             *logging.Logger
	backoff            func(attempt int) time.Duration
}

// NewTelnyxSender builds a sender for Telnyx V2 API.
func NewTelnyxSender(apiKey, messagingProfileID string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		baseURL:            telnyxBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:  logger,
		backoff: jitterBackoff,
	}
}

var _ conversation.ReplyMessenger = (*TelnyxSender)(nil)

type telnyxMessageRequest struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	Text               string `json:"text"`
	MessagingProfileID string `json:"messaging_profile_id,omitempty"`
}

// SendReply dispatches a single SMS via Telnyx V2 API, retrying transient failures.
func (s *TelnyxSender) SendReply(ctx context.Context, msg conversation.OutboundReply) error {
	if s.apiKey == "" {
		return errors.New("messaging: telnyx api key missing")
	}
	if msg.To == "" {
		return errors.New("messaging: to required")
	}
	if msg.From == "" {
		return errors.New("messaging: from required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return errors.New("messaging: body required")
	}

	ctx, span := telnyxSendTracer.Start(ctx, "messaging.telnyx.send")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.clinic_id", msg.ClinicID))

	bodyBytes, err := json.Marshal(telnyxMessageRequest{
		From:               msg.From,
		To:                 msg.To,
		Text:               msg.Body,
		MessagingProfileID: s.messagingProfileID,
	})
	if err != nil {
		return fmt.Errorf("messaging: marshal telnyx payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if msg.Metadata != nil && len(body) > 0 {
					var parsed struct {
						Data struct {
							ID string `json:"id"`
							To []struct {
								Status string `json:"status"`
							} `json:"to"`
						} `json:"data"`
					}
					if err := json.Unmarshal(body, &parsed); err == nil {
						if parsed.Data.ID != "" {
							msg.Metadata["provider_message_id"] = parsed.Data.ID
						}
						if len(parsed.Data.To) > 0 && parsed.Data.To[0].Status != "" {
							msg.Metadata["provider_status"] = parsed.Data.To[0].Status
						}
					}
				}
				s.logger.Info("telnyx sms sent", "clinic_id", msg.ClinicID)
				return nil
			}
			lastErr = fmt.Errorf("telnyx send failed: %s", formatTelnyxError(resp.StatusCode, body))
			if !retryableStatus(resp.StatusCode) {
				break
			}
		}

		if attempt < sendAttempts {
			if err := sleepCtx(ctx, s.backoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		s.logger.Error("failed to send telnyx sms", "error", lastErr, "clinic_id", msg.ClinicID)
	}
	return lastErr
}

func formatTelnyxError(status int, body []byte) string {
	var parsed struct {
		Errors []struct {
			Code   string `json:"code"`
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		e := parsed.Errors[0]
		detail := e.Detail
		if detail == "" {
			detail = e.Title
		}
		if e.Code != "" {
			return fmt.Sprintf("status %d code %s: %s", status, e.Code, detail)
		}
		return fmt.Sprintf("status %d: %s", status, detail)
	}
	return fmt.Sprintf("status %d", status)
}
