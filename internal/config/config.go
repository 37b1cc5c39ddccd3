package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	SlotStepMinutes int
	LLMTimeout      time.Duration
	GatewayTimeout  time.Duration
	TurnLockTTL     time.Duration

	LLMProvider    string
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModel    string
	LLMMaxTokens   int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	UseMemoryQueue        bool
	ConversationQueueURL  string
	ConversationJobsTable string
	WorkerCount           int
	EventsQueueURL        string

	SMSProvider              string
	TwilioAccountSID         string
	TwilioAuthToken          string
	TwilioFromNumber         string
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxWebhookSecret      string

	EmailProvider  string
	EmailFrom      string
	EmailFromName  string
	SendGridAPIKey string

	TranscriptBucket string

	JWTSecret          string
	AuthDisabled       bool
	CORSAllowedOrigins []string

	InboundRatePerMinute int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SlotStepMinutes: getEnvAsInt("SLOT_STEP_MINUTES", 30),
		LLMTimeout:      getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		GatewayTimeout:  getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
		TurnLockTTL:     getEnvAsDuration("TURN_LOCK_TTL", 2*time.Minute),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "auto")),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 512),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		UseMemoryQueue:        getEnvAsBool("USE_MEMORY_QUEUE", true),
		ConversationQueueURL:  getEnv("CONVERSATION_QUEUE_URL", ""),
		ConversationJobsTable: getEnv("CONVERSATION_JOBS_TABLE", ""),
		WorkerCount:           getEnvAsInt("WORKER_COUNT", 2),
		EventsQueueURL:        getEnv("EVENTS_QUEUE_URL", ""),

		SMSProvider:              strings.ToLower(getEnv("SMS_PROVIDER", "auto")),
		TwilioAccountSID:         getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:          getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:         getEnv("TWILIO_FROM_NUMBER", ""),
		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxWebhookSecret:      getEnv("TELNYX_WEBHOOK_SECRET", ""),

		EmailProvider:  strings.ToLower(getEnv("EMAIL_PROVIDER", "auto")),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Clinic Assistant"),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),

		TranscriptBucket: getEnv("TRANSCRIPT_BUCKET", ""),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		AuthDisabled:       getEnvAsBool("AUTH_DISABLED", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		InboundRatePerMinute: getEnvAsInt("INBOUND_RATE_PER_MINUTE", 20),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
