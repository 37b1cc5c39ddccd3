package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// Publisher enqueues inbound messages for the conversation worker.
type Publisher struct {
	queue  Queue
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher. jobs may be nil, in which
// case no job status is recorded.
func NewPublisher(queue Queue, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		jobs:   jobs,
		logger: logger,
	}
}

// EnqueueInbound publishes one inbound message and returns its job id.
func (p *Publisher) EnqueueInbound(ctx context.Context, jobID string, msg InboundMessage, opts ...PublishOption) (string, error) {
	payload := queuePayload{
		ID:          jobID,
		Kind:        jobTypeInbound,
		Inbound:     msg,
		TrackStatus: p.jobs != nil,
	}
	for _, opt := range opts {
		opt(&payload)
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	if payload.TrackStatus {
		record := &JobRecord{
			JobID:       payload.ID,
			RequestType: payload.Kind,
			ClinicID:    msg.ClinicID,
			Phone:       msg.Phone,
		}
		if err := p.jobs.PutPending(ctx, record); err != nil {
			return "", err
		}
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "kind", payload.Kind, "clinic_id", msg.ClinicID)
	return payload.ID, nil
}
