package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingScrapeAPIKey  = errors.New("SCRAPE_API_KEY is not set: the upstream scraping API cannot be called without it")
	ErrMissingS3Credentials = errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set to cache media in S3")
	ErrMissingS3Bucket      = errors.New("S3_BUCKET_NAME must be set to cache media in S3")
)

type Config struct {
	// Server
	ServerPort string

	// Database
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	DatabaseURL string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisURL      string

	// RabbitMQ
	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPassword string

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
	S3UseSSL           string
	S3BucketName       string
	S3Prefix           string
	S3PublicBaseURL    string
	S3PresignTTL       time.Duration

	// Upstream scraping API
	ScrapeAPIKey     string
	ScrapeAPIBaseURL string
	ScrapeAPITimeout time.Duration

	// AI collaborators, not consulted by the ingestion core
	OpenAIAPIKey string
	GeminiAPIKey string

	// Ingestion tuning
	IngestBatchSize   int
	IngestBatchPause  time.Duration
	MediaFetchTimeout time.Duration
	MediaFetchWorkers int
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	config := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "tokingest"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisURL:      getEnv("REDIS_URL", ""),

		RabbitMQHost:     getEnv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:     getEnv("RABBITMQ_PORT", "5672"),
		RabbitMQUser:     getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword: getEnv("RABBITMQ_PASSWORD", "guest"),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpoint:        getEnv("AWS_ENDPOINT", ""),
		S3UseSSL:           getEnv("S3_USE_SSL", "true"),
		S3BucketName:       getEnv("S3_BUCKET_NAME", "tok-ingest-media"),
		S3Prefix:           getEnv("S3_PREFIX", "cache"),
		S3PublicBaseURL:    getEnv("S3_PUBLIC_BASE_URL", ""),
		S3PresignTTL:       getEnvDuration("S3_PRESIGN_TTL", time.Hour),

		ScrapeAPIKey:     getEnv("SCRAPE_API_KEY", ""),
		ScrapeAPIBaseURL: getEnv("SCRAPE_API_BASE_URL", "https://api.scrapecreators.com"),
		ScrapeAPITimeout: getEnvDuration("SCRAPE_API_TIMEOUT", 30*time.Second),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		IngestBatchSize:   getEnvInt("INGEST_BATCH_SIZE", 10),
		IngestBatchPause:  getEnvDuration("INGEST_BATCH_PAUSE", 100*time.Millisecond),
		MediaFetchTimeout: getEnvDuration("MEDIA_FETCH_TIMEOUT", 30*time.Second),
		MediaFetchWorkers: getEnvInt("MEDIA_FETCH_WORKERS", 8),
	}

	// Credentials are checked lazily by the Require* helpers so that
	// commands which never touch S3 or the scraper still start.

	return config, nil
}

// RequireScrapeAPIKey fails fast when the upstream scraper is about to be used without a key.
func (c *Config) RequireScrapeAPIKey() error {
	if c.ScrapeAPIKey == "" {
		return ErrMissingScrapeAPIKey
	}
	return nil
}

// RequireS3Credentials fails fast when blob storage is about to be used without credentials.
func (c *Config) RequireS3Credentials() error {
	if c.S3BucketName == "" {
		return ErrMissingS3Bucket
	}
	if c.AWSAccessKeyID == "" || c.AWSSecretAccessKey == "" {
		return ErrMissingS3Credentials
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
