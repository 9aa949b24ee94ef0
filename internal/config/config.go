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
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Conversation store
	StoreBackend  string // sqlite or redis
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Vectorstore
	VectorBackend     string // pgvector or memory
	PostgresURL       string
	EmbeddingProvider string // openai, gemini or ollama
	EmbeddingModel    string
	EmbeddingDims     int

	// Knowledge ingestion, MaxUploadBytes 0 disables the upload cap
	ChunkSize      int
	ChunkOverlap   int
	IngestWorkers  int
	CrawlTimeout   time.Duration
	MaxUploadBytes int64

	// CrawlAllowPrivate lets the crawler reach loopback and private networks.
	CrawlAllowPrivate bool

	// Per-user bot configuration
	BotConfigDir    string
	BotDefaultsFile string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GeminiAPIKey    string
	OllamaURL       string
	DefaultLLM      string

	// Prompt budget, 0 disables history trimming
	MaxPromptTokens int

	// CORS origins for the chat widget, comma separated
	CORSOrigins []string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables, after loading a .env file
// when one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Conversation store
		StoreBackend:  getEnv("STORE_BACKEND", "sqlite"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/chatbot.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// Vectorstore
		VectorBackend:     getEnv("VECTOR_BACKEND", "memory"),
		PostgresURL:       getEnv("POSTGRES_URL", "postgres://postgres@localhost/chatbot?sslmode=disable"),
		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "openai"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),
		EmbeddingDims:     getIntEnv("EMBEDDING_DIMS", 1536),

		// Knowledge ingestion
		ChunkSize:      getIntEnv("CHUNK_SIZE", 1000),
		ChunkOverlap:   getIntEnv("CHUNK_OVERLAP", 20),
		IngestWorkers:  getIntEnv("INGEST_WORKERS", 4),
		CrawlTimeout:   getDurationEnv("CRAWL_TIMEOUT", 20*time.Second),
		MaxUploadBytes: int64(getIntEnv("MAX_UPLOAD_BYTES", 16<<20)),

		CrawlAllowPrivate: getBoolEnv("CRAWL_ALLOW_PRIVATE", false),

		// Bot config
		BotConfigDir:    getEnv("BOT_CONFIG_DIR", "data/configs"),
		BotDefaultsFile: getEnv("BOT_DEFAULTS_FILE", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		DefaultLLM:      getEnv("DEFAULT_LLM", "openai"),

		MaxPromptTokens: getIntEnv("MAX_PROMPT_TOKENS", 0),

		CORSOrigins: getListEnv("CORS_ORIGINS", nil),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

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

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
