package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Telegram Bot API
	TelegramToken    string
	TelegramBaseURL  string
	TelegramPollSecs int
	OperatorChatID   int64

	// Assistant fallback
	AssistantProvider     string
	AssistantTimeout      time.Duration
	AssistantPollInterval time.Duration
	OpenAIAPIKey          string
	OpenAIAssistantID     string
	GigaChatCredentials   string
	GigaChatAuthURL       string
	GigaChatBaseURL       string
	GigaChatScope         string

	// Session storage
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool

	// Lead archive (optional)
	DatabaseURL string

	// Operator email copies (optional)
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	HandoffEmailCopyTo []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TelegramToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBaseURL:  getEnv("TELEGRAM_BASE_URL", ""),
		TelegramPollSecs: getEnvAsInt("TELEGRAM_POLL_SECONDS", 25),
		OperatorChatID:   getEnvAsInt64("OPERATOR_CHAT_ID", 0),

		AssistantProvider:     strings.ToLower(strings.TrimSpace(getEnv("ASSISTANT_PROVIDER", "none"))),
		AssistantTimeout:      getEnvAsDuration("ASSISTANT_TIMEOUT", 60*time.Second),
		AssistantPollInterval: getEnvAsDuration("ASSISTANT_POLL_INTERVAL", 700*time.Millisecond),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIAssistantID:     getEnv("OPENAI_ASSISTANT_ID", ""),
		GigaChatCredentials:   getEnv("GIGACHAT_CREDENTIALS", ""),
		GigaChatAuthURL:       getEnv("GIGACHAT_AUTH_URL", ""),
		GigaChatBaseURL:       getEnv("GIGACHAT_BASE_URL", ""),
		GigaChatScope:         getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),

		SessionBackend: strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "ОСНОВА-РЕСУРС Бот"),
		HandoffEmailCopyTo: getEnvAsList("HANDOFF_EMAIL_COPY_TO"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

// getEnvAsInt64 retrieves an environment variable as an int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
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

// getEnvAsList splits a comma-separated environment variable into trimmed values.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
