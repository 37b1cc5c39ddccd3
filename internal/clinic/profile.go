// Package clinic holds per-clinic profile settings used to shape the
// assistant's replies and route inbound numbers to tenants.
package clinic

import (
	"fmt"
	"strings"
	"time"
)

// Tone values understood by ToneInstruction.
const (
	ToneWarm         = "warm"
	ToneClinical     = "clinical"
	ToneProfessional = "professional"
)

// Profile is the clinic-level configuration the conversation layer reads.
type Profile struct {
	ClinicID string `json:"clinic_id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"` // e.g., "America/Sao_Paulo"
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	// SMSNumbers are the inbound numbers that route to this clinic.
	SMSNumbers []string `json:"sms_numbers,omitempty"`
	// Tone sets the communication style: "warm" (default), "clinical" or "professional".
	Tone         string `json:"tone,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	Greeting     string `json:"greeting,omitempty"`
	// NotificationEmails receive handoff alerts.
	NotificationEmails []string `json:"notification_emails,omitempty"`
	HandoffAlerts      bool     `json:"handoff_alerts"`
	Policies           []string `json:"policies,omitempty"`
}

// DefaultProfile returns the profile used before a clinic saves its own.
func DefaultProfile(clinicID string) *Profile {
	return &Profile{
		ClinicID:      clinicID,
		Name:          "Clinic",
		Timezone:      "UTC",
		Tone:          ToneWarm,
		HandoffAlerts: true,
	}
}

// Location resolves the clinic timezone, falling back to UTC.
func (p *Profile) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ToneInstruction maps Tone to a line for the system prompt.
func (p *Profile) ToneInstruction() string {
	tone := ToneWarm
	if p != nil && p.Tone != "" {
		tone = strings.ToLower(strings.TrimSpace(p.Tone))
	}
	switch tone {
	case ToneClinical:
		return "TONE: Clinical and precise. Focus on accuracy and patient safety."
	case ToneProfessional:
		return "TONE: Straightforward and professional. Keep replies short and focused on booking."
	default:
		return "TONE: Warm and approachable. Make patients feel comfortable while staying professional."
	}
}

// PromptContext describes the clinic for the assistant's system prompt.
func (p *Profile) PromptContext() string {
	if p == nil {
		return ""
	}
	parts := []string{fmt.Sprintf("You are the scheduling assistant for %s.", p.Name)}
	if p.ProviderName != "" {
		parts = append(parts, fmt.Sprintf("Primary provider: %s. Never claim to be the provider.", p.ProviderName))
	}
	if p.Address != "" {
		parts = append(parts, "Address: "+p.Address)
	}
	if p.Phone != "" {
		parts = append(parts, "Front desk phone: "+p.Phone)
	}
	if p.Greeting != "" {
		parts = append(parts, fmt.Sprintf("Greet new patients with: %q", p.Greeting))
	}
	parts = append(parts, p.ToneInstruction())
	if len(p.Policies) > 0 {
		parts = append(parts, "POLICIES:\n- "+strings.Join(p.Policies, "\n- "))
	}
	return strings.Join(parts, "\n")
}
