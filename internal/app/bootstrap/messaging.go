package bootstrap

import (
	appconfig "github.com/wolfman30/clinic-booking-engine/internal/config"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/internal/messaging"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// BuildOutboundMessenger creates the reply gateway. Outside production a
// missing provider degrades to the log messenger.
func BuildOutboundMessenger(cfg *appconfig.Config, logger *logging.Logger) (conversation.ReplyMessenger, string, error) {
	if cfg == nil {
		return nil, "", errMissingConfig
	}
	messengerCfg := messaging.ProviderSelectionConfig{
		Preference:       cfg.SMSProvider,
		TelnyxAPIKey:     cfg.TelnyxAPIKey,
		TelnyxProfileID:  cfg.TelnyxMessagingProfileID,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
		AllowLogFallback: !cfg.IsProduction(),
	}
	return messaging.BuildReplyMessenger(messengerCfg, logger)
}

// BuildWebhookHandler wires the inbound SMS webhooks to the publisher.
// processed may be nil when no database is configured.
func BuildWebhookHandler(cfg *appconfig.Config, publisher *conversation.Publisher, profiles ProfileSource, processed messaging.ProcessedTracker, logger *logging.Logger) *messaging.WebhookHandler {
	return messaging.NewWebhookHandler(publisher, profiles, processed, messaging.WebhookConfig{
		TwilioAuthToken:     cfg.TwilioAuthToken,
		TelnyxWebhookSecret: cfg.TelnyxWebhookSecret,
		RequireSignatures:   cfg.IsProduction(),
		RatePerMinute:       cfg.InboundRatePerMinute,
	}, logger)
}
