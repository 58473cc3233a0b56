package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	LLM        LLMConfig
	Cache      CacheConfig
	Sources    SourcesConfig
	Workers    WorkersConfig
	Outbox     OutboxConfig
	Downstream DownstreamConfig
	Archive    ArchiveConfig
	Log        LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
	GRPCAddr string
}

// LLMConfig holds extraction-provider configuration
type LLMConfig struct {
	Provider      string // openai | cohere
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	CohereKey     string
	CohereModel   string
	Temperature   float32
	Timeout       time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
	RatePerSec    float64
	Burst         int
	MinConfidence float64
	Lenient       bool // drop malformed optional fields instead of failing the item
}

// CacheConfig holds response-cache configuration
type CacheConfig struct {
	RedisURL string // empty selects the in-process cache
	TTL      time.Duration
}

// SourcesConfig holds poller configuration
type SourcesConfig struct {
	ChatAPIURL            string
	ChatAPIToken          string
	ChatMessageLimit      int
	PageFetchTimeout      time.Duration
	SocialFeedURLTemplate string
	SocialPostLimit       int
	RecencyWindow         time.Duration
	MinContentLength      int
	MaxSourcesPerCycle    int
	PollConcurrency       int
	Schedule              string
}

// WorkersConfig holds durable-queue worker configuration
type WorkersConfig struct {
	ExtractWorkers  int
	ValidateWorkers int
	MaxAttempts     int
	RetryBase       time.Duration
	Lease           time.Duration
	PollInterval    time.Duration
	JobTimeout      time.Duration
}

// OutboxConfig holds dispatcher configuration
type OutboxConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Batch       int
	Interval    time.Duration
}

// DownstreamConfig selects where outbox events are published
type DownstreamConfig struct {
	Driver       string // kafka | redis | log
	KafkaBrokers []string
	TopicPrefix  string
}

// ArchiveConfig holds optional S3 dead-letter archiving
type ArchiveConfig struct {
	Bucket string
	Prefix string
	Region string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // text | json
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8081"),
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			CohereKey:     getEnv("COHERE_API_KEY", ""),
			CohereModel:   getEnv("COHERE_MODEL", "command-r"),
			Temperature:   getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			MaxAttempts:   getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
			RetryDelay:    getEnvAsDuration("LLM_RETRY_DELAY", 2*time.Second),
			RatePerSec:    getEnvAsFloat64("LLM_RATE_PER_SEC", 1),
			Burst:         getEnvAsInt("LLM_BURST", 3),
			MinConfidence: getEnvAsFloat64("PATTERN_MIN_CONFIDENCE", 0.7),
			Lenient:       getEnvAsBool("LLM_LENIENT", false),
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			TTL:      getEnvAsDuration("CACHE_TTL", 72*time.Hour),
		},
		Sources: SourcesConfig{
			ChatAPIURL:            getEnv("CHAT_API_URL", ""),
			ChatAPIToken:          getEnv("CHAT_API_TOKEN", ""),
			ChatMessageLimit:      getEnvAsInt("CHAT_MESSAGE_LIMIT", 100),
			PageFetchTimeout:      getEnvAsDuration("PAGE_FETCH_TIMEOUT", 30*time.Second),
			SocialFeedURLTemplate: getEnv("SOCIAL_FEED_URL_TEMPLATE", ""),
			SocialPostLimit:       getEnvAsInt("SOCIAL_POST_LIMIT", 20),
			RecencyWindow:         time.Duration(getEnvAsInt("RECENCY_WINDOW_DAYS", 7)) * 24 * time.Hour,
			MinContentLength:      getEnvAsInt("MIN_CONTENT_LENGTH", 40),
			MaxSourcesPerCycle:    getEnvAsInt("MAX_SOURCES_PER_CYCLE", 25),
			PollConcurrency:       getEnvAsInt("POLL_CONCURRENCY", 4),
			Schedule:              getEnv("POLL_SCHEDULE", "@every 4h"),
		},
		Workers: WorkersConfig{
			ExtractWorkers:  getEnvAsInt("EXTRACT_WORKERS", 4),
			ValidateWorkers: getEnvAsInt("VALIDATE_WORKERS", 2),
			MaxAttempts:     getEnvAsInt("JOB_MAX_ATTEMPTS", 5),
			RetryBase:       getEnvAsDuration("JOB_RETRY_BASE", 30*time.Second),
			Lease:           getEnvAsDuration("JOB_LEASE", 5*time.Minute),
			PollInterval:    getEnvAsDuration("JOB_POLL_INTERVAL", 2*time.Second),
			JobTimeout:      getEnvAsDuration("JOB_TIMEOUT", 3*time.Minute),
		},
		Outbox: OutboxConfig{
			MaxAttempts: getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 5),
			BackoffBase: getEnvAsDuration("OUTBOX_BACKOFF_BASE", time.Minute),
			BackoffMax:  getEnvAsDuration("OUTBOX_BACKOFF_MAX", time.Hour),
			Batch:       getEnvAsInt("OUTBOX_BATCH", 50),
			Interval:    getEnvAsDuration("OUTBOX_INTERVAL", 5*time.Second),
		},
		Downstream: DownstreamConfig{
			Driver:       strings.ToLower(getEnv("DOWNSTREAM_DRIVER", "log")),
			KafkaBrokers: getEnvAsList("KAFKA_BROKERS", nil),
			TopicPrefix:  getEnv("KAFKA_TOPIC_PREFIX", "casting."),
		},
		Archive: ArchiveConfig{
			Bucket: getEnv("DLQ_S3_BUCKET", ""),
			Prefix: getEnv("DLQ_S3_PREFIX", "dead-letters"),
			Region: getEnv("AWS_REGION", ""),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
		}
	case "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("DB_DRIVER %q is not supported", c.Database.Driver), ErrInvalidInput)
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
		}
	case "cohere":
		if c.LLM.CohereKey == "" {
			return NewAppError("CONFIG_ERROR", "COHERE_API_KEY is required", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("LLM_PROVIDER %q is not supported", c.LLM.Provider), ErrInvalidInput)
	}
	if c.LLM.MaxAttempts < 1 || c.Workers.MaxAttempts < 1 || c.Outbox.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "attempt counts must be at least 1", ErrInvalidInput)
	}
	if c.LLM.MinConfidence < 0 || c.LLM.MinConfidence > 1 {
		return NewAppError("CONFIG_ERROR", "PATTERN_MIN_CONFIDENCE must be within [0,1]", ErrInvalidInput)
	}
	switch c.Downstream.Driver {
	case "kafka":
		if len(c.Downstream.KafkaBrokers) == 0 {
			return NewAppError("CONFIG_ERROR", "KAFKA_BROKERS is required for the kafka downstream", ErrInvalidInput)
		}
	case "redis":
		if c.Cache.RedisURL == "" {
			return NewAppError("CONFIG_ERROR", "REDIS_URL is required for the redis downstream", ErrInvalidInput)
		}
	case "log":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("DOWNSTREAM_DRIVER %q is not supported", c.Downstream.Driver), ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
