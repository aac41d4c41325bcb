package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures the full server configuration from the environment so main
// stays lean.
type Config struct {
	Addr          string
	PostgresDSN   string
	Redis         RedisConfig
	Kafka         KafkaConfig
	JWTSigningKey string
	TokenIssuer   string

	// AccessTokenTTL is the lifetime of issued access tokens.
	AccessTokenTTL time.Duration

	// ReceiptTokenTTL bounds how long a deletion receipt token stays valid
	// after the account is gone.
	ReceiptTokenTTL time.Duration

	// DocumentRoot is the base directory for locally stored document files
	// when S3 is not configured.
	DocumentRoot string
	S3Bucket     string
}

// RedisConfig holds the session revocation store settings. An empty URL
// disables Redis and falls back to the in-memory store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the notification publisher settings. Empty brokers
// disable Kafka and fall back to the logging sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables, loading a .env file
// first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            envOr("MEDIHUB_ADDR", ":8080"),
		PostgresDSN:     os.Getenv("MEDIHUB_POSTGRES_DSN"),
		JWTSigningKey:   envOr("MEDIHUB_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		TokenIssuer:     envOr("MEDIHUB_TOKEN_ISSUER", "medihub"),
		AccessTokenTTL:  envDurationOr("MEDIHUB_ACCESS_TOKEN_TTL", 24*time.Hour),
		ReceiptTokenTTL: envDurationOr("MEDIHUB_RECEIPT_TOKEN_TTL", 15*time.Minute),
		DocumentRoot:    envOr("MEDIHUB_DOCUMENT_ROOT", "uploads"),
		S3Bucket:        os.Getenv("MEDIHUB_S3_BUCKET"),
		Redis: RedisConfig{
			URL:          os.Getenv("MEDIHUB_REDIS_URL"),
			PoolSize:     envIntOr("MEDIHUB_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("MEDIHUB_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDurationOr("MEDIHUB_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("MEDIHUB_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("MEDIHUB_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Topic: envOr("MEDIHUB_KAFKA_TOPIC", "medihub.notifications"),
		},
	}

	if brokers := os.Getenv("MEDIHUB_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
