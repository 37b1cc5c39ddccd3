package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/clinic-booking-engine/internal/config"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

const (
	LLMProviderAuto    = "auto"
	LLMProviderBedrock = "bedrock"
	LLMProviderGemini  = "gemini"
	LLMProviderStub    = "stub"
)

// ErrNoLLMProvider is returned in production when no model is configured.
var ErrNoLLMProvider = errors.New("bootstrap: no llm provider configured")

// BuildLLMClient selects the model backend. In auto mode Bedrock is primary
// and Gemini the fallback when both are configured. Development falls back
// to the echoing stub; production refuses to start without a model.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (conversation.LLMClient, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if provider == "" {
		provider = LLMProviderAuto
	}
	bedrockModel := strings.TrimSpace(cfg.BedrockModelID)
	geminiKey := strings.TrimSpace(cfg.GeminiAPIKey)

	buildBedrock := func() conversation.LLMClient {
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}
	buildGemini := func() (conversation.LLMClient, error) {
		client, err := conversation.NewGeminiLLMClient(ctx, geminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, nil
	}

	switch provider {
	case LLMProviderStub:
		logger.Warn("using stub llm client")
		return conversation.StubLLMClient{}, LLMProviderStub, nil
	case LLMProviderBedrock:
		if bedrockModel == "" {
			return nil, "", fmt.Errorf("bootstrap: LLM_PROVIDER=bedrock requires BEDROCK_MODEL_ID")
		}
		return buildBedrock(), LLMProviderBedrock, nil
	case LLMProviderGemini:
		if geminiKey == "" {
			return nil, "", fmt.Errorf("bootstrap: LLM_PROVIDER=gemini requires GEMINI_API_KEY")
		}
		client, err := buildGemini()
		if err != nil {
			return nil, "", err
		}
		return client, LLMProviderGemini, nil
	case LLMProviderAuto:
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", provider)
	}

	switch {
	case bedrockModel != "" && geminiKey != "":
		gemini, err := buildGemini()
		if err != nil {
			logger.Warn("gemini fallback unavailable", "error", err)
			return buildBedrock(), LLMProviderBedrock, nil
		}
		return conversation.NewFallbackLLMClient(buildBedrock(), gemini, logger), "bedrock+gemini", nil
	case bedrockModel != "":
		return buildBedrock(), LLMProviderBedrock, nil
	case geminiKey != "":
		client, err := buildGemini()
		if err != nil {
			return nil, "", err
		}
		return client, LLMProviderGemini, nil
	}

	if cfg.IsProduction() {
		return nil, "", ErrNoLLMProvider
	}
	logger.Warn("no llm configured; using stub llm client")
	return conversation.StubLLMClient{}, LLMProviderStub, nil
}

// ModelID returns the model name passed on each request for the selected
// provider.
func ModelID(cfg *appconfig.Config, provider string) string {
	if cfg == nil {
		return ""
	}
	if provider == LLMProviderGemini {
		return cfg.GeminiModel
	}
	return cfg.BedrockModelID
}
