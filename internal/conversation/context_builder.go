package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
	"github.com/wolfman30/clinic-booking-engine/internal/procedures"
	"github.com/wolfman30/clinic-booking-engine/internal/scheduling"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

const maxHistoryMessages = 24

const baseSystemPrompt = `You book appointments for patients over SMS.
RULES:
- Always call checkAvailability before offering times. Never invent a time.
- Only call createAppointment with a time that checkAvailability returned, after the patient picked it.
- If createAppointment reports "slot unavailable", apologise and offer other free times.
- Call transferToHuman when the patient asks for a person, has a medical question, or is upset.
- Never give medical advice. Keep replies under 320 characters.`

// ProfileSource reads clinic profiles.
type ProfileSource interface {
	Get(ctx context.Context, clinicID string) (*clinic.Profile, error)
}

// HoursSource reads a clinic's weekly opening hours.
type HoursSource interface {
	WorkingHours(ctx context.Context, clinicID string) ([]scheduling.WorkingHours, error)
}

// ContextBuilder assembles the prompt for one turn. Profile, catalog and
// hours are optional: a failed lookup is logged and the section skipped.
type ContextBuilder struct {
	profiles ProfileSource
	catalog  procedures.Catalog
	hours    HoursSource
	logger   *logging.Logger
	now      func() time.Time
}

func NewContextBuilder(profiles ProfileSource, catalog procedures.Catalog, hours HoursSource, logger *logging.Logger) *ContextBuilder {
	if logger == nil {
		logger = logging.Default()
	}
	return &ContextBuilder{
		profiles: profiles,
		catalog:  catalog,
		hours:    hours,
		logger:   logger,
		now:      time.Now,
	}
}

// Build returns the system prompt blocks and the message list ending with the
// new inbound text.
func (b *ContextBuilder) Build(ctx context.Context, sess *Session, text string) ([]string, []ChatMessage) {
	profile := clinic.DefaultProfile(sess.ClinicID)
	if b.profiles != nil {
		p, err := b.profiles.Get(ctx, sess.ClinicID)
		if err != nil {
			b.logger.Warn("clinic profile unavailable", "session_id", sess.ID(), "error", err)
		} else if p != nil {
			profile = p
		}
	}

	today := b.now().In(profile.Location())
	system := []string{
		baseSystemPrompt,
		profile.PromptContext(),
		fmt.Sprintf("Today is %s, %s (clinic time).", today.Weekday(), today.Format("2006-01-02")),
	}

	if b.catalog != nil {
		list, err := b.catalog.List(ctx, sess.ClinicID)
		if err != nil {
			b.logger.Warn("procedure catalog unavailable", "session_id", sess.ID(), "error", err)
		} else if len(list) > 0 {
			system = append(system, formatCatalog(list))
		}
	}

	if b.hours != nil {
		hours, err := b.hours.WorkingHours(ctx, sess.ClinicID)
		if err != nil {
			b.logger.Warn("working hours unavailable", "session_id", sess.ID(), "error", err)
		} else if len(hours) > 0 {
			system = append(system, formatHours(hours))
		}
	}

	history := sess.History
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: text})
	return system, messages
}

func formatCatalog(list []procedures.Procedure) string {
	var sb strings.Builder
	sb.WriteString("PROCEDURES (name, price, minutes):")
	for _, p := range list {
		fmt.Fprintf(&sb, "\n- %s: %s, %d min", p.Name, formatCents(p.PriceCents), p.DefaultDuration)
	}
	return sb.String()
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func formatHours(hours []scheduling.WorkingHours) string {
	sorted := append([]scheduling.WorkingHours(nil), hours...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Weekday < sorted[j].Weekday })

	var sb strings.Builder
	sb.WriteString("OPENING HOURS:")
	for _, h := range sorted {
		if !h.Active {
			fmt.Fprintf(&sb, "\n- %s: closed", h.Weekday)
			continue
		}
		fmt.Fprintf(&sb, "\n- %s: %s-%s", h.Weekday, h.Open, h.Close)
	}
	return sb.String()
}
