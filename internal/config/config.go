package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	HTTPAddr      string
	PublicBaseURL string
	OTLPEndpoint  string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StoreRefreshInterval time.Duration

	Email EmailConfig
	SMS   SMSConfig

	Moderation ModerationConfig

	Review ReviewConfig

	Worker WorkerConfig

	RateLimit RateLimitConfig
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type SMSConfig struct {
	GatewayURL string
	APIKey     string
	Sender     string
}

type ModerationConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type ReviewConfig struct {
	// ImageHosts is the allow-list of CDN hosts accepted in review image
	// URLs. Submissions referencing any other host are rejected.
	ImageHosts []string
}

type WorkerConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	LeaseTTL      time.Duration
	DLRPageSize   int
	SweepPageSize int
}

type RateLimitConfig struct {
	SMSRate    float64
	SMSBurst   int
	EmailRate  float64
	EmailBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "revaly"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "revaly"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		StoreRefreshInterval: getenvDuration("STORE_REFRESH_INTERVAL", time.Minute),

		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "reviews@revaly.io"),
		},
		SMS: SMSConfig{
			GatewayURL: getenv("SMS_GATEWAY_URL", ""),
			APIKey:     getenv("SMS_API_KEY", ""),
			Sender:     getenv("SMS_SENDER", "Revaly"),
		},
		Moderation: ModerationConfig{
			Endpoint: getenv("MODERATION_ENDPOINT", ""),
			APIKey:   getenv("MODERATION_API_KEY", ""),
			Model:    getenv("MODERATION_MODEL", "content-guard-v2"),
			Timeout:  getenvDuration("MODERATION_TIMEOUT", 15*time.Second),
		},
		Review: ReviewConfig{
			ImageHosts: getenvList("REVIEW_IMAGE_HOSTS", []string{"cdn.revaly.io"}),
		},
		Worker: WorkerConfig{
			PollInterval:  getenvDuration("WORKER_POLL_INTERVAL", 30*time.Second),
			BatchSize:     getenvInt("WORKER_BATCH_SIZE", 25),
			LeaseTTL:      getenvDuration("WORKER_LEASE_TTL", 2*time.Minute),
			DLRPageSize:   getenvInt("WORKER_DLR_PAGE_SIZE", 100),
			SweepPageSize: getenvInt("WORKER_SWEEP_PAGE_SIZE", 50),
		},
		RateLimit: RateLimitConfig{
			SMSRate:    getenvFloat("RATE_LIMIT_SMS_RATE", 1),
			SMSBurst:   getenvInt("RATE_LIMIT_SMS_BURST", 10),
			EmailRate:  getenvFloat("RATE_LIMIT_EMAIL_RATE", 5),
			EmailBurst: getenvInt("RATE_LIMIT_EMAIL_BURST", 50),
		},
	}
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getenvList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
