package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPhone(t *testing.T) {
	h1 := HashPhone("+15005550002")
	h2 := HashPhone("+15005550002")
	h3 := HashPhone("+15551234567")

	assert.Equal(t, h1, h2, "same input should produce same hash")
	assert.NotEqual(t, h1, h3, "different input should produce different hash")
	assert.Len(t, h1, 64, "SHA-256 hex should be 64 chars")
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "contact me at ana@example.com please", "contact me at [EMAIL] please"},
		{"phone", "call me at (330) 333-2654", "call me at[PHONE]"},
		{"phone with plus", "my number is +15005550002", "my number is [PHONE]"},
		{"brazilian mobile", "meu celular (11) 91234-5678", "meu celular [PHONE]"},
		{"cpf", "CPF 123.456.789-09", "CPF [CPF]"},
		{"date and time kept", "2024-06-10 at 09:30", "2024-06-10 at 09:30"},
		{"no pii", "Quero marcar uma consulta", "Quero marcar uma consulta"},
		{"name kept", "Meu nome é Ana Souza", "Meu nome é Ana Souza"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}

func TestScrubMessages(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "my email is test@test.com"},
		{Role: "assistant", Content: "Got it!"},
	}
	ScrubMessages(msgs)
	assert.Equal(t, "my email is [EMAIL]", msgs[0].Content)
	assert.Equal(t, "Got it!", msgs[1].Content)
}
