package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	GinMode   string
	StaticDir string

	// OpenRouter
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string
	OpenRouterReferer string
	OpenRouterTitle   string

	// Generation defaults
	ChatMaxTokens     int
	Temperature       float64
	StructuredOutputs bool // json_schema response_format on resume parse and question requests

	// Upstream timeouts
	UpstreamTimeout    time.Duration // /api/chat streaming generation
	QuestionsTimeout   time.Duration
	AnswersTimeout     time.Duration // per question
	ResumeParseTimeout time.Duration
	ResumeChatCutoff   time.Duration // hard wall-clock limit for /api/chat-with-resume

	// Session registry
	SessionGracePeriod time.Duration
	ListenerBufferSize int

	// Workers and stores
	AnswerWorkers   int
	ResumeStoreSize int
	ResumeStoreTTL  time.Duration

	// HTTP Transport Connection Pool
	ProxyMaxIdleConns        int
	ProxyMaxIdleConnsPerHost int
	ProxyMaxConnsPerHost     int
	ProxyIdleConnTimeout     int // in seconds

	// NATS event tap (optional)
	NatsURL           string
	NatsSubjectPrefix string

	// Prompt templates override file (optional)
	PromptsFile string

	// Cron spec for the registry stats job
	StatsSchedule string

	// Server
	ServerShutdownTimeoutSeconds int

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string
}

var AppConfig *Config

// LoadConfig reads .env (if present) and the environment into AppConfig.
func LoadConfig() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = Load()

	if AppConfig.OpenRouterAPIKey == "" {
		log.Println("Warning: OPENROUTER_API_KEY is not set. Please set it in .env")
	}
	if AppConfig.OpenRouterModel == "" {
		log.Println("Warning: OPENROUTER_MODEL is not set; upstream requests will use the provider default")
	}
}

// Load builds a Config from the current environment without touching AppConfig.
func Load() *Config {
	return &Config{
		Port:      getEnvOrDefault("PORT", "3000"),
		GinMode:   getEnvOrDefault("GIN_MODE", "release"),
		StaticDir: getEnvOrDefault("STATIC_DIR", "public"),

		// OpenRouter
		OpenRouterAPIKey:  strings.TrimSpace(getEnvOrDefault("OPENROUTER_API_KEY", "")),
		OpenRouterModel:   getEnvOrDefault("OPENROUTER_MODEL", ""),
		OpenRouterBaseURL: strings.TrimRight(getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"), "/"),
		OpenRouterReferer: getEnvOrDefault("OPENROUTER_REFERER", "http://localhost:3000"),
		OpenRouterTitle:   getEnvOrDefault("OPENROUTER_TITLE", "SkillSpeak"),

		ChatMaxTokens:     getEnvAsInt("CHAT_MAX_TOKENS", 6000),
		Temperature:       getEnvFloat("TEMPERATURE", 0.3),
		StructuredOutputs: getEnvAsBool("OPENROUTER_STRUCTURED_OUTPUTS", true),

		UpstreamTimeout:    getEnvAsDuration("UPSTREAM_TIMEOUT", 5*time.Minute),
		QuestionsTimeout:   getEnvAsDuration("QUESTIONS_TIMEOUT", 60*time.Second),
		AnswersTimeout:     getEnvAsDuration("ANSWERS_TIMEOUT", 30*time.Second),
		ResumeParseTimeout: getEnvAsDuration("RESUME_PARSE_TIMEOUT", 30*time.Second),
		ResumeChatCutoff:   getEnvAsDuration("RESUME_CHAT_CUTOFF", 30*time.Second),

		SessionGracePeriod: getEnvAsDuration("SESSION_GRACE_PERIOD", 5*time.Minute),
		ListenerBufferSize: getEnvAsInt("LISTENER_BUFFER_SIZE", 256),

		AnswerWorkers:   getEnvAsInt("ANSWER_WORKERS", 4),
		ResumeStoreSize: getEnvAsInt("RESUME_STORE_SIZE", 1000),
		ResumeStoreTTL:  getEnvAsDuration("RESUME_STORE_TTL", 24*time.Hour),

		ProxyMaxIdleConns:        getEnvAsInt("PROXY_MAX_IDLE_CONNS", 100),
		ProxyMaxIdleConnsPerHost: getEnvAsInt("PROXY_MAX_IDLE_CONNS_PER_HOST", 50),
		ProxyMaxConnsPerHost:     getEnvAsInt("PROXY_MAX_CONNS_PER_HOST", 100),
		ProxyIdleConnTimeout:     getEnvAsInt("PROXY_IDLE_CONN_TIMEOUT_SECONDS", 90),

		NatsURL:           getEnvOrDefault("NATS_URL", ""),
		NatsSubjectPrefix: getEnvOrDefault("NATS_SUBJECT_PREFIX", "skillspeak.events"),

		PromptsFile:   getEnvOrDefault("PROMPTS_FILE", ""),
		StatsSchedule: getEnvOrDefault("STATS_SCHEDULE", "@every 1m"),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as float, using default %f: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as bool, using default %t: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}
