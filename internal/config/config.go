package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once at startup.
type Config struct {
	Environment string

	Server    ServerConfig
	Redis     RedisConfig
	Scylla    ScyllaConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	OTP       OTPConfig
	Auth      AuthConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CertFile     string
	KeyFile      string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	SMSTopic    string
	EventsTopic string
}

// RateLimitConfig controls the per-IP, per-endpoint limiter.
// Limit attempts are allowed per Window; exceeding the limit blocks the
// address for another full Window.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// OTPConfig controls challenge lifetime. Length is fixed at 6 digits and kept
// here only so it shows up in one place.
type OTPConfig struct {
	ExpiryWindow time.Duration
	Length       int
}

type AuthConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

var loaded *Config

// LoadConfig reads configuration from the environment, with a local .env file
// honored in development. Missing values fall back to defaults.
func LoadConfig() *Config {
	// Ignore the error: in containers config comes from real env vars.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "phone_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled:     getEnvBool("KAFKA_ENABLED", false),
			Brokers:     getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			SMSTopic:    getEnv("KAFKA_SMS_TOPIC", "sms-outbound"),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "security-events"),
		},
		RateLimit: RateLimitConfig{
			Limit:  getEnvInt("RATE_LIMIT", 3),
			Window: getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		},
		OTP: OTPConfig{
			ExpiryWindow: getEnvDuration("OTP_EXPIRY_WINDOW", 4*time.Minute),
			Length:       6,
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("AUTH_TOKEN_SECRET", "dev-only-secret-change-me"),
			TokenTTL:    getEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	loaded = cfg
	return cfg
}

// Get returns the last loaded config, loading it if needed.
func Get() *Config {
	if loaded == nil {
		return LoadConfig()
	}
	return loaded
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "1h") and bare integers,
// which are taken as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
