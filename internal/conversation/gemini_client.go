package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLMClient implements LLMClient using Google's Gemini API with
// function calling.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}

	return &GeminiLLMClient{
		client:  client,
		modelID: modelID,
	}, nil
}

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := c.client.GenerativeModel(c.modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}

	if len(req.System) > 0 {
		systemText := strings.Join(req.System, "\n\n")
		if strings.TrimSpace(systemText) != "" {
			model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
		}
	}

	msgs := req.Messages
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{geminiTool(req.Tools)}
		model.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAuto},
		}
	} else {
		msgs = flattenToolTurns(msgs)
	}

	contents, err := geminiContents(msgs)
	if err != nil {
		return LLMResponse{}, err
	}
	if len(contents) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini requires at least one message")
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned empty content")
	}

	var responseText strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	result := LLMResponse{
		Text:       strings.TrimSpace(responseText.String()),
		StopReason: candidate.FinishReason.String(),
	}
	// Gemini does not assign call ids, so number them per response.
	for i, call := range candidate.FunctionCalls() {
		args, err := json.Marshal(call.Args)
		if err != nil {
			return LLMResponse{}, fmt.Errorf("conversation: encode gemini call args: %w", err)
		}
		result.Invocations = append(result.Invocations, ToolInvocation{
			ID:   fmt.Sprintf("gemini-%d", i+1),
			Name: call.Name,
			Args: args,
		})
	}

	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}

	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func geminiTool(tools []ToolSpec) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(tool.Params)),
		}
		for _, p := range tool.Params {
			prop := &genai.Schema{Type: genai.TypeString, Description: p.Description, Enum: p.Enum}
			if p.Type == "integer" {
				prop.Type = genai.TypeInteger
			}
			schema.Properties[p.Name] = prop
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

// geminiContents maps the transcript onto user/model contents. Consecutive
// messages with the same role share one content.
func geminiContents(msgs []ChatMessage) ([]*genai.Content, error) {
	var contents []*genai.Content
	add := func(role string, parts []genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range msgs {
		text := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case ChatRoleSystem:
			continue
		case ChatRoleUser:
			if text != "" {
				add("user", []genai.Part{genai.Text(text)})
			}
		case ChatRoleAssistant:
			var parts []genai.Part
			if text != "" {
				parts = append(parts, genai.Text(text))
			}
			for _, inv := range msg.Invocations {
				args := map[string]any{}
				if len(inv.Args) > 0 {
					if err := json.Unmarshal(inv.Args, &args); err != nil {
						return nil, fmt.Errorf("conversation: invocation args: %w", err)
					}
				}
				parts = append(parts, genai.FunctionCall{Name: inv.Name, Args: args})
			}
			add("model", parts)
		case ChatRoleTool:
			parts := make([]genai.Part, 0, len(msg.Results))
			for _, res := range msg.Results {
				payload := map[string]any{}
				if err := json.Unmarshal(res.Content, &payload); err != nil {
					return nil, fmt.Errorf("conversation: tool result: %w", err)
				}
				parts = append(parts, genai.FunctionResponse{Name: res.Name, Response: payload})
			}
			add("user", parts)
		default:
			return nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}
	return contents, nil
}
