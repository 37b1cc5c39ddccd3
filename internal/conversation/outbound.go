package conversation

import (
	"context"
	"time"
)

// ReplyMessenger delivers assistant replies back to the patient (e.g. via SMS).
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// OutboundReply carries the data required to push a message to the patient.
type OutboundReply struct {
	ClinicID string
	To       string
	From     string
	Body     string
	Metadata map[string]string
}

// HandoffEvent describes a session that was transferred to clinic staff.
type HandoffEvent struct {
	ClinicID string
	Phone    string
	Reason   string
	History  []ChatMessage
	At       time.Time
}

// HandoffNotifier alerts the clinic when a patient asks for a person.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, evt HandoffEvent) error
}
