package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking-engine/internal/archive"
	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// ProfileSource reads clinic profiles.
type ProfileSource interface {
	Get(ctx context.Context, clinicID string) (*clinic.Profile, error)
}

// TranscriptArchiver stores a handed-off conversation and returns its key.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, record *archive.TranscriptRecord) (string, error)
}

const transcriptPreviewMessages = 10

// HandoffNotifier tells clinic staff that a patient asked for a person. The
// transcript is archived first so the email can point at it.
type HandoffNotifier struct {
	email       EmailSender
	profiles    ProfileSource
	transcripts TranscriptArchiver
	logger      *logging.Logger
}

// NewHandoffNotifier builds a notifier. Any dependency may be nil, in which
// case that step is skipped.
func NewHandoffNotifier(email EmailSender, profiles ProfileSource, transcripts TranscriptArchiver, logger *logging.Logger) *HandoffNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &HandoffNotifier{
		email:       email,
		profiles:    profiles,
		transcripts: transcripts,
		logger:      logger,
	}
}

var _ conversation.HandoffNotifier = (*HandoffNotifier)(nil)

// NotifyHandoff archives the transcript and emails every notification
// address on the clinic profile. Failures of individual recipients are
// joined into the returned error.
func (n *HandoffNotifier) NotifyHandoff(ctx context.Context, evt conversation.HandoffEvent) error {
	logger := n.logger.With("clinic_id", evt.ClinicID)

	profile := clinic.DefaultProfile(evt.ClinicID)
	if n.profiles != nil {
		p, err := n.profiles.Get(ctx, evt.ClinicID)
		if err != nil {
			logger.Warn("notify: clinic profile unavailable", "error", err)
		} else if p != nil {
			profile = p
		}
	}

	var errs []error
	var transcriptKey string
	if n.transcripts != nil {
		key, err := n.transcripts.ArchiveTranscript(ctx, transcriptRecord(evt))
		if err != nil {
			logger.Error("notify: transcript archive failed", "error", err)
			errs = append(errs, err)
		}
		transcriptKey = key
	}

	if n.email == nil || !profile.HandoffAlerts || len(profile.NotificationEmails) == 0 {
		logger.Debug("notify: handoff email skipped")
		return errors.Join(errs...)
	}

	msg := handoffEmail(profile, evt, transcriptKey)
	for _, to := range profile.NotificationEmails {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		msg.To = to
		if err := n.email.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify: handoff email: %w", err))
		}
	}
	return errors.Join(errs...)
}

func transcriptRecord(evt conversation.HandoffEvent) *archive.TranscriptRecord {
	msgs := make([]archive.Message, 0, len(evt.History))
	for _, m := range evt.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, archive.Message{Role: m.Role, Content: m.Content})
	}
	return &archive.TranscriptRecord{
		ClinicID:    evt.ClinicID,
		PhoneHash:   archive.HashPhone(evt.Phone),
		Reason:      evt.Reason,
		HandedOffAt: evt.At,
		Messages:    msgs,
	}
}

func handoffEmail(profile *clinic.Profile, evt conversation.HandoffEvent, transcriptKey string) EmailMessage {
	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	local := at.In(profile.Location())

	var b strings.Builder
	fmt.Fprintf(&b, "A patient asked to speak with someone at %s.\n\n", profile.Name)
	fmt.Fprintf(&b, "Phone: %s\n", evt.Phone)
	if evt.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", evt.Reason)
	}
	fmt.Fprintf(&b, "Time: %s\n", local.Format("Monday, 2006-01-02 15:04 MST"))
	if transcriptKey != "" {
		fmt.Fprintf(&b, "Transcript: %s\n", transcriptKey)
	}

	recent := evt.History
	if len(recent) > transcriptPreviewMessages {
		recent = recent[len(recent)-transcriptPreviewMessages:]
	}
	if len(recent) > 0 {
		b.WriteString("\nRecent messages:\n")
		for _, m := range recent {
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			fmt.Fprintf(&b, "  %s: %s\n", speaker(m.Role), m.Content)
		}
	}
	b.WriteString("\nThe assistant stays silent for this patient until the conversation is released.\n")

	return EmailMessage{
		Subject: fmt.Sprintf("[%s] Patient requested a person", profile.Name),
		Body:    b.String(),
	}
}

func speaker(role string) string {
	switch role {
	case conversation.ChatRoleUser:
		return "Patient"
	case conversation.ChatRoleAssistant:
		return "Assistant"
	default:
		return role
	}
}
