package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	// ChatRoleTool carries capability results back to the model.
	ChatRoleTool = "tool"
)

// ChatMessage is the provider-neutral message representation. Assistant
// messages may carry capability invocations; tool messages carry results.
type ChatMessage struct {
	Role        string           `json:"role"`
	Content     string           `json:"content,omitempty"`
	Invocations []ToolInvocation `json:"invocations,omitempty"`
	Results     []ToolResult     `json:"results,omitempty"`
}

// ToolParam describes one argument of a capability.
type ToolParam struct {
	Name        string
	Type        string // "string" or "integer"
	Description string
	Required    bool
	Enum        []string
}

// ToolSpec declares a capability the model may invoke.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

// JSONSchema renders the parameters as a JSON Schema object.
func (s ToolSpec) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ToolInvocation is a capability call requested by the model.
type ToolInvocation struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolResult is the JSON object produced by executing one invocation.
type ToolResult struct {
	InvocationID string          `json:"invocation_id"`
	Name         string          `json:"name"`
	Content      json.RawMessage `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	Model    string
	System   []string
	Messages []ChatMessage
	// Tools is empty on the final round; providers must not emit tool
	// blocks then.
	Tools       []ToolSpec
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text        string
	Invocations []ToolInvocation
	Usage       TokenUsage
	StopReason  string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// flattenToolTurns rewrites invocation and result messages as plain text so
// the transcript can be sent to a provider without a tool configuration.
func flattenToolTurns(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.Role == ChatRoleAssistant && len(msg.Invocations) > 0:
			var b strings.Builder
			if text := strings.TrimSpace(msg.Content); text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
			for _, inv := range msg.Invocations {
				fmt.Fprintf(&b, "[called %s %s]\n", inv.Name, compactArgs(inv.Args))
			}
			out = append(out, ChatMessage{Role: ChatRoleAssistant, Content: strings.TrimSpace(b.String())})
		case msg.Role == ChatRoleTool:
			var b strings.Builder
			for _, res := range msg.Results {
				fmt.Fprintf(&b, "[%s result] %s\n", res.Name, string(res.Content))
			}
			out = append(out, ChatMessage{Role: ChatRoleUser, Content: strings.TrimSpace(b.String())})
		default:
			out = append(out, ChatMessage{Role: msg.Role, Content: msg.Content})
		}
	}
	return out
}

func compactArgs(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	return string(args)
}
