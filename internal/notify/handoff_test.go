package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-engine/internal/archive"
	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

type recordingEmail struct {
	sent []EmailMessage
	err  error
}

func (r *recordingEmail) Send(_ context.Context, msg EmailMessage) error {
	r.sent = append(r.sent, msg)
	return r.err
}

type staticProfiles struct {
	profile *clinic.Profile
	err     error
}

func (s staticProfiles) Get(context.Context, string) (*clinic.Profile, error) {
	return s.profile, s.err
}

type recordingArchiver struct {
	records []*archive.TranscriptRecord
	err     error
}

func (r *recordingArchiver) ArchiveTranscript(_ context.Context, rec *archive.TranscriptRecord) (string, error) {
	r.records = append(r.records, rec)
	if r.err != nil {
		return "", r.err
	}
	return "transcripts/v1/clinic-a/key.json", nil
}

func handoffEvent() conversation.HandoffEvent {
	return conversation.HandoffEvent{
		ClinicID: "clinic-a",
		Phone:    "+15550102000",
		Reason:   "quer falar com a recepção",
		At:       time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC),
		History: []conversation.ChatMessage{
			{Role: conversation.ChatRoleUser, Content: "Posso falar com alguém?"},
			{Role: conversation.ChatRoleAssistant, Invocations: []conversation.ToolInvocation{{ID: "1", Name: conversation.CapTransferToHuman}}},
			{Role: conversation.ChatRoleAssistant, Content: "Claro, vou chamar a equipe."},
		},
	}
}

func sorrisoProfile() *clinic.Profile {
	return &clinic.Profile{
		ClinicID:           "clinic-a",
		Name:               "Clínica Sorriso",
		Timezone:           "America/Sao_Paulo",
		NotificationEmails: []string{"recepcao@sorriso.test", " ", "gerente@sorriso.test"},
		HandoffAlerts:      true,
	}
}

func TestHandoffNotifierEmailsAndArchives(t *testing.T) {
	email := &recordingEmail{}
	archiver := &recordingArchiver{}
	n := NewHandoffNotifier(email, staticProfiles{profile: sorrisoProfile()}, archiver, logging.Discard())

	require.NoError(t, n.NotifyHandoff(context.Background(), handoffEvent()))

	require.Len(t, archiver.records, 1)
	rec := archiver.records[0]
	assert.Equal(t, "clinic-a", rec.ClinicID)
	assert.Equal(t, archive.HashPhone("+15550102000"), rec.PhoneHash)
	assert.Len(t, rec.Messages, 2, "invocation-only turns are not archived")

	require.Len(t, email.sent, 2)
	assert.Equal(t, "recepcao@sorriso.test", email.sent[0].To)
	assert.Equal(t, "gerente@sorriso.test", email.sent[1].To)
	body := email.sent[0].Body
	assert.Contains(t, email.sent[0].Subject, "Clínica Sorriso")
	assert.Contains(t, body, "+15550102000")
	assert.Contains(t, body, "quer falar com a recepção")
	assert.Contains(t, body, "transcripts/v1/clinic-a/key.json")
	assert.Contains(t, body, "14:00", "time is shown in the clinic timezone")
	assert.Contains(t, body, "Patient: Posso falar com alguém?")
}

func TestHandoffNotifierSkipsEmailWhenDisabled(t *testing.T) {
	profile := sorrisoProfile()
	profile.HandoffAlerts = false
	email := &recordingEmail{}

	n := NewHandoffNotifier(email, staticProfiles{profile: profile}, nil, logging.Discard())
	require.NoError(t, n.NotifyHandoff(context.Background(), handoffEvent()))
	assert.Empty(t, email.sent)
}

func TestHandoffNotifierDefaultProfileHasNoRecipients(t *testing.T) {
	email := &recordingEmail{}
	n := NewHandoffNotifier(email, staticProfiles{err: errors.New("redis down")}, nil, logging.Discard())

	require.NoError(t, n.NotifyHandoff(context.Background(), handoffEvent()))
	assert.Empty(t, email.sent)
}

func TestHandoffNotifierJoinsFailures(t *testing.T) {
	email := &recordingEmail{err: errors.New("sendgrid 500")}
	archiver := &recordingArchiver{err: errors.New("s3 denied")}
	n := NewHandoffNotifier(email, staticProfiles{profile: sorrisoProfile()}, archiver, logging.Discard())

	err := n.NotifyHandoff(context.Background(), handoffEvent())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "s3 denied") && strings.Contains(err.Error(), "sendgrid 500"), err.Error())
	assert.Len(t, email.sent, 2, "every recipient is attempted")
}
