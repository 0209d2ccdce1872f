// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort        string
	ServerReadTimeout time.Duration
	AllowedOrigins    []string

	// Storage
	DatabaseURL   string
	DBAutoMigrate bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// AMQP settings
	AMQPURL      string
	AMQPExchange string

	// Knowledge retrieval
	ElasticAddresses []string
	ElasticUsername  string
	ElasticPassword  string
	ElasticIndex     string
	EmbeddingModel   string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string
	LLMTemperature  float64
	LLMTimeout      time.Duration

	// Classification providers
	RasaURL             string
	RasaToken           string
	RasaThreshold       float64
	DialogflowProjectID string
	DialogflowToken     string // static dev token; empty uses Google default credentials
	DialogflowLanguage  string
	DialogflowThreshold float64
	ProviderTimeout     time.Duration

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// WebSocket
	WSWriteTimeout time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present; real environment variables
// take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:        getEnv("PORT", "8080"),
		ServerReadTimeout: getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		AllowedOrigins:    getListEnv("ALLOWED_ORIGINS", []string{"https://*", "http://*"}),

		// Storage
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBAutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", true),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// AMQP
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "concierge"),

		// Knowledge
		ElasticAddresses: getListEnv("ELASTICSEARCH_ADDRESSES", nil),
		ElasticUsername:  getEnv("ELASTICSEARCH_USERNAME", ""),
		ElasticPassword:  getEnv("ELASTICSEARCH_PASSWORD", ""),
		ElasticIndex:     getEnv("ELASTICSEARCH_INDEX", "knowledge"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMTemperature:  getFloatEnv("LLM_TEMPERATURE", 0.3),
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", 15*time.Second),

		// Classification providers
		RasaURL:             getEnv("RASA_URL", ""),
		RasaToken:           getEnv("RASA_TOKEN", ""),
		RasaThreshold:       getFloatEnv("RASA_THRESHOLD", 0.8),
		DialogflowProjectID: getEnv("DIALOGFLOW_PROJECT_ID", ""),
		DialogflowToken:     getEnv("DIALOGFLOW_ACCESS_TOKEN", ""),
		DialogflowLanguage:  getEnv("DIALOGFLOW_LANGUAGE", "en"),
		DialogflowThreshold: getFloatEnv("DIALOGFLOW_THRESHOLD", 0.7),
		ProviderTimeout:     getDurationEnv("PROVIDER_TIMEOUT", 3*time.Second),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// WebSocket
		WSWriteTimeout: getDurationEnv("WS_WRITE_TIMEOUT", 10*time.Second),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
