package conversation

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestGeminiContentsMapsToolTurns(t *testing.T) {
	contents, err := geminiContents(toolTranscript())
	if err != nil {
		t.Fatalf("geminiContents: %v", err)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Fatalf("expected assistant turn as model, got %s", contents[1].Role)
	}
	call, ok := contents[1].Parts[0].(genai.FunctionCall)
	if !ok || call.Name != CapCheckAvailability || call.Args["date"] != "2024-06-10" {
		t.Fatalf("unexpected function call part: %#v", contents[1].Parts[0])
	}
	resp, ok := contents[2].Parts[0].(genai.FunctionResponse)
	if !ok || contents[2].Role != "user" || resp.Name != CapCheckAvailability {
		t.Fatalf("unexpected function response: %#v", contents[2])
	}
}

func TestGeminiContentsMergesSameRole(t *testing.T) {
	contents, err := geminiContents([]ChatMessage{
		{Role: ChatRoleSystem, Content: "ignored here"},
		{Role: ChatRoleUser, Content: "first"},
		{Role: ChatRoleUser, Content: "second"},
		{Role: ChatRoleAssistant, Content: "reply"},
	})
	if err != nil {
		t.Fatalf("geminiContents: %v", err)
	}
	if len(contents) != 2 || len(contents[0].Parts) != 2 {
		t.Fatalf("expected merged user content, got %#v", contents)
	}

	if _, err := geminiContents([]ChatMessage{{Role: "narrator", Content: "x"}}); err == nil {
		t.Fatal("expected unsupported role error")
	}
}

func TestGeminiToolDeclarations(t *testing.T) {
	tool := geminiTool((&Capabilities{}).Specs())
	if len(tool.FunctionDeclarations) != 4 {
		t.Fatalf("expected 4 declarations, got %d", len(tool.FunctionDeclarations))
	}
	create := tool.FunctionDeclarations[1]
	if create.Name != CapCreateAppointment || len(create.Parameters.Required) != 2 {
		t.Fatalf("unexpected declaration: %#v", create)
	}
	if create.Parameters.Properties["procedure_name"] == nil {
		t.Fatal("expected optional procedure_name property")
	}
}
