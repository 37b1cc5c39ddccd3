package messaging

import (
	"context"

	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// LogMessenger writes replies to the log instead of sending them. It is the
// development gateway when no SMS provider is configured.
type LogMessenger struct {
	logger *logging.Logger
}

func NewLogMessenger(logger *logging.Logger) *LogMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogMessenger{logger: logger}
}

var _ conversation.ReplyMessenger = (*LogMessenger)(nil)

func (m *LogMessenger) SendReply(_ context.Context, reply conversation.OutboundReply) error {
	m.logger.Info("sms reply (not sent)",
		"clinic_id", reply.ClinicID,
		"from", reply.From,
		"body", reply.Body,
	)
	return nil
}
