package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// FailoverMessenger attempts a primary send, then falls back to a secondary provider on error.
type FailoverMessenger struct {
	primary       conversation.ReplyMessenger
	secondary     conversation.ReplyMessenger
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverMessenger builds a failover messenger with named providers.
func NewFailoverMessenger(primary conversation.ReplyMessenger, primaryName string, secondary conversation.ReplyMessenger, secondaryName string, logger *logging.Logger) *FailoverMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverMessenger{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ conversation.ReplyMessenger = (*FailoverMessenger)(nil)

// SendReply tries the primary provider, then the secondary. A cancelled
// context is not retried on the secondary. When both fail the errors are
// joined.
func (f *FailoverMessenger) SendReply(ctx context.Context, reply conversation.OutboundReply) error {
	if f == nil || f.primary == nil {
		return errors.New("messaging: failover primary sender not configured")
	}
	err := f.primary.SendReply(ctx, reply)
	if err == nil || f.secondary == nil || ctx.Err() != nil {
		return err
	}

	f.logger.Warn("primary sms send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"clinic_id", reply.ClinicID,
		"error", err,
	)
	if fallbackErr := f.secondary.SendReply(ctx, reply); fallbackErr != nil {
		f.logger.Error("fallback sms send failed",
			"provider", f.secondaryName,
			"clinic_id", reply.ClinicID,
			"error", fallbackErr,
		)
		return errors.Join(err, fallbackErr)
	}
	return nil
}
