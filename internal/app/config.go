package app

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string
	RedisURL      string
	LogLevel      string
	LogFormat     string // "json" or "text"

	// Error monitoring
	SentryDSN   string
	Environment string

	// LLM providers. A provider is registered only when its key is set.
	GroqAPIKey      string
	GroqModel       string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	DefaultProvider string
	LLMTimeout      time.Duration

	// Voice platform
	RetellAPIKey      string
	RetellPhoneNumber string
	RetellAgentID     string

	// Dispatcher API
	JWTSecret string

	// Emergency escalation
	DiscordWebhookURL      string
	APNsKeyPath            string
	APNsKeyID              string
	APNsTeamID             string
	APNsBundleID           string
	APNsProduction         bool
	DispatcherDeviceTokens []string

	// Post-call analysis queue
	AnalysisStream       string
	AnalysisGroup        string
	AnalysisConsumer     string
	AnalysisConcurrency  int
	AnalysisTimeout      time.Duration
	AnalysisMaxAttempts  int
	ShutdownDrainTimeout time.Duration
}

// LoadConfigFromEnv reads configuration from the environment, after loading a
// .env file when one exists.
func LoadConfigFromEnv() Config {
	_ = godotenv.Load()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker-1"
	}

	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		RedisURL:      getenv("REDIS_URL", ""),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),

		SentryDSN:   getenv("SENTRY_DSN", ""),
		Environment: getenv("ENVIRONMENT", "development"),

		GroqAPIKey:      getenv("GROQ_API_KEY", ""),
		GroqModel:       getenv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		OpenAIAPIKey:    getenv("OPENAI_API_KEY", ""),
		OpenAIModel:     getenv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey: getenv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getenv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		DefaultProvider: strings.ToLower(getenv("DEFAULT_LLM_PROVIDER", "groq")),
		LLMTimeout:      getenvDuration("LLM_TIMEOUT", 20*time.Second),

		RetellAPIKey:      getenv("RETELL_API_KEY", ""),
		RetellPhoneNumber: getenv("RETELL_PHONE_NUMBER", ""),
		RetellAgentID:     getenv("RETELL_AGENT_ID", ""),

		JWTSecret: os.Getenv("JWT_SECRET"), // no fallback

		DiscordWebhookURL:      getenv("DISCORD_WEBHOOK_URL", ""),
		APNsKeyPath:            getenv("APNS_KEY_PATH", ""),
		APNsKeyID:              getenv("APNS_KEY_ID", ""),
		APNsTeamID:             getenv("APNS_TEAM_ID", ""),
		APNsBundleID:           getenv("APNS_BUNDLE_ID", ""),
		APNsProduction:         getenvBool("APNS_PRODUCTION", false),
		DispatcherDeviceTokens: parseList(os.Getenv("DISPATCHER_DEVICE_TOKENS")),

		AnalysisStream:       getenv("ANALYSIS_STREAM", "call-analysis"),
		AnalysisGroup:        getenv("ANALYSIS_CONSUMER_GROUP", "analysis-workers"),
		AnalysisConsumer:     getenv("ANALYSIS_CONSUMER_NAME", hostname),
		AnalysisConcurrency:  getenvIntClamped("ANALYSIS_CONCURRENCY", 4, 1, 64),
		AnalysisTimeout:      getenvDuration("ANALYSIS_TIMEOUT", 2*time.Minute),
		AnalysisMaxAttempts:  getenvIntClamped("ANALYSIS_MAX_ATTEMPTS", 3, 1, 20),
		ShutdownDrainTimeout: getenvDuration("SHUTDOWN_DRAIN_TIMEOUT", 5*time.Minute),
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.GroqAPIKey == "" && c.OpenAIAPIKey == "" && c.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("at least one of GROQ_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY is required"))
	}
	return errors.Join(errs...)
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

// getenvIntClamped reads an int and clamps it to [min, max].
func getenvIntClamped(k string, def, min, max int) int {
	v := getenvInt(k, def)
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getenvBool(k string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return def
	}
	return b
}
