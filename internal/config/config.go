// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageBackendLocal = "local"
	StorageBackendGCS   = "gcs"
)

// Task backends
const (
	TaskBackendLocal = "local"
	TaskBackendAsynq = "asynq"
)

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// Config holds all configuration for the application
type Config struct {
	Database      DatabaseConfig
	Redis         RedisConfig
	Server        ServerConfig
	Logging       LoggingConfig
	CORS          CORSConfig
	Storage       StorageConfig
	Probe         ProbeConfig
	Transcription TranscriptionConfig
	LLM           LLMConfig
	Pipeline      PipelineConfig
	Cache         CacheConfig
	Maintenance   MaintenanceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address of the Redis server
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// StorageConfig selects and configures the media store
type StorageConfig struct {
	Backend            string
	UploadDir          string
	BaseURL            string
	GCSBucket          string
	GCSPublicBaseURL   string
	GCSCredentialsFile string
	SignedURLExpiry    time.Duration
}

// ProbeConfig configures the ffprobe duration probe
type ProbeConfig struct {
	FFprobePath string
	ScratchDir  string
}

// TranscriptionConfig configures the speech-to-text service client
type TranscriptionConfig struct {
	URL     string
	Timeout time.Duration
}

// LLMConfig configures the chat completion client used for quiz generation
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// PipelineConfig configures background processing
type PipelineConfig struct {
	CountEach   int
	ItemDelay   time.Duration
	TaskBackend string
	TaskTimeout time.Duration
}

// CacheConfig configures the read cache
type CacheConfig struct {
	Backend string
	TTL     time.Duration
}

// MaintenanceConfig configures periodic housekeeping
type MaintenanceConfig struct {
	Schedule     string
	RunRetention time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}

	// Database configuration
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}
	cfg.Database.Host = dbHost

	dbPort, err := intEnv("DB_PORT", 0)
	if err != nil {
		return nil, err
	}
	if dbPort == 0 {
		return nil, fmt.Errorf("DB_PORT is required")
	}
	cfg.Database.Port = dbPort

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	cfg.Database.User = dbUser

	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	cfg.Database.Password = dbPassword

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return nil, fmt.Errorf("DB_NAME is required")
	}
	cfg.Database.DBName = dbName

	// Server configuration
	if cfg.Server.Port, err = intEnv("SERVER_PORT", 8080); err != nil {
		return nil, err
	}

	// Logging configuration
	cfg.Logging.Level = stringEnv("LOG_LEVEL", "info")

	// CORS configuration
	cfg.CORS.AllowedOrigins = parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))

	// Storage configuration, the backend is chosen explicitly and validated here once
	cfg.Storage.Backend = strings.ToLower(stringEnv("STORAGE_BACKEND", StorageBackendLocal))
	cfg.Storage.UploadDir = stringEnv("UPLOAD_DIR", "./uploads")
	cfg.Storage.BaseURL = strings.TrimRight(stringEnv("MEDIA_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)), "/")
	cfg.Storage.GCSBucket = os.Getenv("GCS_BUCKET")
	cfg.Storage.GCSPublicBaseURL = strings.TrimRight(os.Getenv("GCS_PUBLIC_BASE_URL"), "/")
	cfg.Storage.GCSCredentialsFile = os.Getenv("GCS_CREDENTIALS_FILE")
	if cfg.Storage.SignedURLExpiry, err = durationEnv("GCS_SIGNED_URL_EXPIRY", time.Hour); err != nil {
		return nil, err
	}
	switch cfg.Storage.Backend {
	case StorageBackendLocal:
	case StorageBackendGCS:
		if cfg.Storage.GCSBucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET is required when STORAGE_BACKEND is %q", StorageBackendGCS)
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q", cfg.Storage.Backend)
	}

	// Duration probe configuration
	cfg.Probe.FFprobePath = stringEnv("FFPROBE_PATH", "ffprobe")
	cfg.Probe.ScratchDir = stringEnv("SCRATCH_DIR", os.TempDir())

	// Transcription configuration
	cfg.Transcription.URL = strings.TrimRight(stringEnv("TRANSCRIPTION_URL", "http://whisper:5000"), "/")
	if cfg.Transcription.Timeout, err = durationEnv("TRANSCRIPTION_TIMEOUT", 15*time.Minute); err != nil {
		return nil, err
	}

	// LLM configuration
	cfg.LLM.BaseURL = strings.TrimRight(stringEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1"), "/")
	cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	cfg.LLM.Model = stringEnv("LLM_MODEL", "llama-3.3-70b-versatile")
	if cfg.LLM.Temperature, err = floatEnv("LLM_TEMPERATURE", 0.7); err != nil {
		return nil, err
	}
	if cfg.LLM.MaxTokens, err = intEnv("LLM_MAX_TOKENS", 1024); err != nil {
		return nil, err
	}
	if cfg.LLM.Timeout, err = durationEnv("LLM_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	// Pipeline configuration
	if cfg.Pipeline.CountEach, err = intEnv("PIPELINE_COUNT_EACH", 1); err != nil {
		return nil, err
	}
	if cfg.Pipeline.CountEach < 1 || cfg.Pipeline.CountEach > 3 {
		return nil, fmt.Errorf("PIPELINE_COUNT_EACH must be between 1 and 3")
	}
	// pause between sequential generations of the same kind, keeps under provider rate limits
	if cfg.Pipeline.ItemDelay, err = durationEnv("PIPELINE_ITEM_DELAY", 500*time.Millisecond); err != nil {
		return nil, err
	}
	cfg.Pipeline.TaskBackend = strings.ToLower(stringEnv("TASK_BACKEND", TaskBackendLocal))
	if cfg.Pipeline.TaskBackend != TaskBackendLocal && cfg.Pipeline.TaskBackend != TaskBackendAsynq {
		return nil, fmt.Errorf("invalid TASK_BACKEND %q", cfg.Pipeline.TaskBackend)
	}
	if cfg.Pipeline.TaskTimeout, err = durationEnv("PIPELINE_TASK_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}

	// Redis configuration (optional, for the asynq task backend and the redis cache)
	cfg.Redis.Host = stringEnv("REDIS_HOST", "localhost")
	if cfg.Redis.Port, err = intEnv("REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD") // optional
	if cfg.Redis.DB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}

	// Cache configuration
	cfg.Cache.Backend = strings.ToLower(stringEnv("CACHE_BACKEND", CacheBackendMemory))
	switch cfg.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis, CacheBackendNone:
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL, err = durationEnv("CACHE_TTL", 300*time.Second); err != nil {
		return nil, err
	}

	// Maintenance configuration
	cfg.Maintenance.Schedule = stringEnv("MAINTENANCE_CRON", "@hourly")
	if cfg.Maintenance.RunRetention, err = durationEnv("RUN_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&multiStatements=true&clientFoundRows=true",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}

// parseOrigins parses comma-separated CORS origins, defaulting to all origins
func parseOrigins(value string) []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(value, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func stringEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
