package messaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

const (
	// SMSProviderAuto tries Telnyx first, then Twilio.
	SMSProviderAuto = "auto"
	// SMSProviderTelnyx forces the Telnyx sender when credentials exist.
	SMSProviderTelnyx = "telnyx"
	// SMSProviderTwilio forces the Twilio sender when credentials exist.
	SMSProviderTwilio = "twilio"
	// SMSProviderLog logs replies instead of sending them.
	SMSProviderLog = "log"
)

// ProviderSelectionConfig captures the credentials required to build outbound messengers.
type ProviderSelectionConfig struct {
	Preference       string
	TelnyxAPIKey     string
	TelnyxProfileID  string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	// AllowLogFallback selects the LogMessenger when no provider has
	// credentials instead of failing.
	AllowLogFallback bool
}

// ErrNoSMSProvider is returned when no gateway could be built.
var ErrNoSMSProvider = errors.New("messaging: no sms provider configured")

// BuildReplyMessenger instantiates the reply gateway for the preferred
// provider and returns the name of the provider that was selected. In auto
// mode with both providers configured, Telnyx is primary and Twilio the
// fallback.
func BuildReplyMessenger(cfg ProviderSelectionConfig, logger *logging.Logger) (conversation.ReplyMessenger, string, error) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = SMSProviderAuto
	}
	if preference == SMSProviderLog {
		return NewLogMessenger(logger), SMSProviderLog, nil
	}

	missing := map[string]string{}
	var telnyx, twilio conversation.ReplyMessenger

	if cfg.TelnyxAPIKey != "" && cfg.TelnyxProfileID != "" {
		telnyx = NewTelnyxSender(cfg.TelnyxAPIKey, cfg.TelnyxProfileID, logger)
	} else {
		missing[SMSProviderTelnyx] = missingVars(map[string]string{
			"TELNYX_API_KEY":              cfg.TelnyxAPIKey,
			"TELNYX_MESSAGING_PROFILE_ID": cfg.TelnyxProfileID,
		})
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilio = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		missing[SMSProviderTwilio] = missingVars(map[string]string{
			"TWILIO_ACCOUNT_SID": cfg.TwilioAccountSID,
			"TWILIO_AUTH_TOKEN":  cfg.TwilioAuthToken,
		})
	}

	switch {
	case preference == SMSProviderTelnyx && telnyx != nil:
		return telnyx, SMSProviderTelnyx, nil
	case preference == SMSProviderTwilio && twilio != nil:
		return twilio, SMSProviderTwilio, nil
	case preference == SMSProviderAuto && telnyx != nil && twilio != nil:
		return NewFailoverMessenger(telnyx, SMSProviderTelnyx, twilio, SMSProviderTwilio, logger), SMSProviderTelnyx + "+" + SMSProviderTwilio, nil
	case preference == SMSProviderAuto && telnyx != nil:
		return telnyx, SMSProviderTelnyx, nil
	case preference == SMSProviderAuto && twilio != nil:
		return twilio, SMSProviderTwilio, nil
	}

	var reasons []string
	for _, provider := range resolvePreferredOrder(preference) {
		if msg := missing[provider]; msg != "" {
			reasons = append(reasons, fmt.Sprintf("%s: %s", provider, msg))
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("unknown provider %q", preference))
	}
	if cfg.AllowLogFallback {
		logger.Warn("no sms provider configured; replies will only be logged", "reason", strings.Join(reasons, "; "))
		return NewLogMessenger(logger), SMSProviderLog, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNoSMSProvider, strings.Join(reasons, "; "))
}

func missingVars(vars map[string]string) string {
	var names []string
	for _, name := range []string{"TELNYX_API_KEY", "TELNYX_MESSAGING_PROFILE_ID", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN"} {
		if v, ok := vars[name]; ok && v == "" {
			names = append(names, name+" missing")
		}
	}
	return strings.Join(names, ", ")
}

func resolvePreferredOrder(preference string) []string {
	switch preference {
	case SMSProviderTelnyx:
		return []string{SMSProviderTelnyx}
	case SMSProviderTwilio:
		return []string{SMSProviderTwilio}
	default:
		return []string{SMSProviderTelnyx, SMSProviderTwilio}
	}
}
