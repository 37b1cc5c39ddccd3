package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDeliveryHandler forwards outbox entries to an SQS queue.
type SQSDeliveryHandler struct {
	client   sqsSender
	queueURL string
}

func NewSQSDeliveryHandler(client sqsSender, queueURL string) *SQSDeliveryHandler {
	if client == nil {
		panic("events: sqs client cannot be nil")
	}
	if queueURL == "" {
		panic("events: queue url cannot be empty")
	}
	return &SQSDeliveryHandler{client: client, queueURL: queueURL}
}

func (h *SQSDeliveryHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	_, err := h.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(h.queueURL),
		MessageBody: aws.String(string(entry.Payload)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"event_id":   {DataType: aws.String("String"), StringValue: aws.String(entry.ID.String())},
			"clinic_id":  {DataType: aws.String("String"), StringValue: aws.String(entry.ClinicID)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", entry.ID, err)
	}
	return nil
}

// LogDeliveryHandler logs entries instead of publishing them. Used when no
// events queue is configured.
type LogDeliveryHandler struct {
	logger *logging.Logger
}

func NewLogDeliveryHandler(logger *logging.Logger) *LogDeliveryHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogDeliveryHandler{logger: logger}
}

func (h *LogDeliveryHandler) Handle(_ context.Context, entry OutboxEntry) error {
	h.logger.Info("outbox event", "event_id", entry.ID, "type", entry.Type, "clinic_id", entry.ClinicID)
	return nil
}
