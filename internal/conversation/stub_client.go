package conversation

import (
	"context"
	"strings"
)

// StubLLMClient answers without a remote model. It is used in local
// development when no provider is configured: it never invokes capabilities
// and echoes the last patient message.
type StubLLMClient struct{}

func (StubLLMClient) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ChatRoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	text := "Thanks for your message! A team member will follow up shortly."
	if last != "" {
		text = "You said: " + last + ". A team member will follow up shortly."
	}
	return LLMResponse{Text: text, StopReason: "end_turn"}, nil
}
