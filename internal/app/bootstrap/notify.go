package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/clinic-booking-engine/internal/archive"
	appconfig "github.com/wolfman30/clinic-booking-engine/internal/config"
	"github.com/wolfman30/clinic-booking-engine/internal/notify"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// BuildEmailSender picks SendGrid or SES per EMAIL_PROVIDER. Auto prefers
// SendGrid when a key is set, then SES when a sender address is set, and
// otherwise logs emails instead of sending them.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.EmailProvider))

	sendgrid := func() notify.EmailSender {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}
	ses := func() notify.EmailSender {
		if cfg.EmailFrom == "" {
			return nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	}

	switch provider {
	case "sendgrid":
		if s := sendgrid(); s != nil {
			return s, "sendgrid"
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty")
	case "ses":
		if s := ses(); s != nil {
			return s, "ses"
		}
		logger.Warn("EMAIL_PROVIDER=ses but EMAIL_FROM is empty")
	default:
		if s := sendgrid(); s != nil {
			return s, "sendgrid"
		}
		if s := ses(); s != nil {
			return s, "ses"
		}
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildTranscriptStore returns the S3 transcript archive. It is a no-op
// store when TRANSCRIPT_BUCKET is empty.
func BuildTranscriptStore(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *archive.TranscriptStore {
	if strings.TrimSpace(cfg.TranscriptBucket) == "" {
		return archive.NewTranscriptStore(nil, "", logger)
	}
	return archive.NewTranscriptStore(s3.NewFromConfig(awsCfg), cfg.TranscriptBucket, logger)
}

// BuildHandoffNotifier wires email alerts and transcript archival for
// conversations handed to staff.
func BuildHandoffNotifier(cfg *appconfig.Config, awsCfg aws.Config, profiles ProfileSource, logger *logging.Logger) *notify.HandoffNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	email, provider := BuildEmailSender(cfg, awsCfg, logger)
	transcripts := BuildTranscriptStore(cfg, awsCfg, logger)
	logger.Info("handoff notifications configured", "email_provider", provider, "transcripts", transcripts.Enabled())
	return notify.NewHandoffNotifier(email, profiles, transcripts, logger)
}
