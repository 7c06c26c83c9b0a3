package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port              string
	Env               string
	DatabaseURL       string
	SupabaseURL       string
	SupabaseJWTSecret string
	GeminiAPIKey      string
	AllowedOrigins    []string
	MaxBodySize       int64
	DefaultCurrency   string

	PayPal PayPalConfig `yaml:"paypal"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Outbox OutboxConfig `yaml:"outbox"`
}

type PayPalConfig struct {
	BaseURL      string        `yaml:"base_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	WebhookID    string        `yaml:"webhook_id"`
	ReturnURL    string        `yaml:"return_url"`
	CancelURL    string        `yaml:"cancel_url"`
	BrandName    string        `yaml:"brand_name"`
	Timeout      time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	BalanceTTL time.Duration `yaml:"balance_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// Load reads .env, then the optional YAML file named by CONFIG_FILE, then the
// environment. Environment values win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PayPal: PayPalConfig{
			BaseURL:   "https://api-m.sandbox.paypal.com",
			BrandName: "Mealshare",
			Timeout:   15 * time.Second,
		},
		Redis:  RedisConfig{BalanceTTL: 5 * time.Minute},
		Kafka:  KafkaConfig{Topic: "ledger-events"},
		Outbox: OutboxConfig{PollInterval: 2 * time.Second, BatchSize: 100},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Env = getEnv("ENV", "development")
	cfg.Port = getEnv("PORT", "8080")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.SupabaseURL = getEnv("SUPABASE_URL", "")
	cfg.SupabaseJWTSecret = getEnv("SUPABASE_JWT_SECRET", "")
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	cfg.DefaultCurrency = strings.ToUpper(getEnv("DEFAULT_CURRENCY", "EUR"))

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	} else {
		if cfg.Env == "production" {
			zap.L().Warn("ALLOWED_ORIGINS not set in production, defaulting to '*'")
		}
		cfg.AllowedOrigins = []string{"*"}
	}

	cfg.MaxBodySize = int64(1 * 1024 * 1024)
	if sizeStr := os.Getenv("MAX_BODY_SIZE"); sizeStr != "" {
		if size, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
			cfg.MaxBodySize = size
		}
	}

	cfg.PayPal.BaseURL = getEnv("PAYPAL_BASE_URL", cfg.PayPal.BaseURL)
	cfg.PayPal.ClientID = getEnv("PAYPAL_CLIENT_ID", cfg.PayPal.ClientID)
	cfg.PayPal.ClientSecret = getEnv("PAYPAL_CLIENT_SECRET", cfg.PayPal.ClientSecret)
	cfg.PayPal.WebhookID = getEnv("PAYPAL_WEBHOOK_ID", cfg.PayPal.WebhookID)
	publicBase := strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/")
	if publicBase != "" {
		cfg.PayPal.ReturnURL = publicBase + "/wallet/topup/return"
		cfg.PayPal.CancelURL = publicBase + "/wallet/topup/cancel"
	}
	cfg.PayPal.ReturnURL = getEnv("PAYPAL_RETURN_URL", cfg.PayPal.ReturnURL)
	cfg.PayPal.CancelURL = getEnv("PAYPAL_CANCEL_URL", cfg.PayPal.CancelURL)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = db
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
