package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	StripeSecretKey  string
	StripeWebhookKey string // optional; webhooks answer 500 without it
	Currency         string

	JWTSecret string

	RedisURL              string
	NotificationsTopicARN string
	NotificationsQueueURL string // used when no topic is set

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	UseSecretsManager bool
	DBSecretName      string

	MetricsEnabled   bool
	MetricsNamespace string
	LogsEnabled      bool
	LogGroup         string
}

// SecretGetter resolves a named secret. pkg/aws.SecretsClient satisfies it.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8088"),
		Environment:           getEnv("ENVIRONMENT", "development"),
		PostgresUser:          os.Getenv("POSTGRES_USER"),
		PostgresPassword:      os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:            os.Getenv("POSTGRES_DB"),
		PostgresHost:          os.Getenv("POSTGRES_HOST"),
		PostgresPort:          getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:       getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:      getEnv("POSTGRES_TIMEZONE", "UTC"),
		StripeSecretKey:       os.Getenv("STRIPE_API_KEY"),
		StripeWebhookKey:      os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:              strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		JWTSecret:             strings.TrimSpace(os.Getenv("JWT_SECRET")),
		RedisURL:              os.Getenv("REDIS_URL"),
		NotificationsTopicARN: os.Getenv("ORDER_SNS_TOPIC_ARN"),
		NotificationsQueueURL: os.Getenv("ORDER_SQS_QUEUE_URL"),
		CORSOrigins:           splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		RateLimitRPS:          getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:        getInt("RATE_LIMIT_BURST", 20),
		UseSecretsManager:     os.Getenv("AWS_USE_SECRETS") == "true",
		DBSecretName:          getEnv("DB_SECRET_NAME", "shop/postgres"),
		MetricsEnabled:        os.Getenv("CLOUDWATCH_ENABLED") == "true",
		MetricsNamespace:      getEnv("CLOUDWATCH_NAMESPACE", "ShopService"),
		LogsEnabled:           os.Getenv("CLOUDWATCH_LOGS_ENABLED") == "true",
		LogGroup:              getEnv("CLOUDWATCH_LOG_GROUP", "/shop/services"),
	}

	if cfg.StripeSecretKey == "" || cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required environment variables")
	}
	if !cfg.UseSecretsManager {
		if err := cfg.validateDB(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ApplySecrets overrides the database credentials with the JSON secret
// {"username","password","host","port","dbname"} stored under DBSecretName.
// Empty fields keep their env values.
func (c *Config) ApplySecrets(ctx context.Context, sm SecretGetter) error {
	raw, err := sm.GetSecret(ctx, c.DBSecretName)
	if err != nil {
		return err
	}

	var s struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Host     string `json:"host"`
		Port     string `json:"port"`
		DBName   string `json:"dbname"`
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return fmt.Errorf("decode secret %s: %w", c.DBSecretName, err)
	}

	c.PostgresUser = pick(s.Username, c.PostgresUser)
	c.PostgresPassword = pick(s.Password, c.PostgresPassword)
	c.PostgresHost = pick(s.Host, c.PostgresHost)
	c.PostgresPort = pick(s.Port, c.PostgresPort)
	c.PostgresDB = pick(s.DBName, c.PostgresDB)

	return c.validateDB()
}

func (c *Config) validateDB() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("missing required environment variables")
	}
	return nil
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(strings.TrimSuffix(part, "/")); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
