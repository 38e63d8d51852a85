package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CellarRule controls whether and when streak demotion to the cellar runs.
type CellarRule string

const (
	CellarRuleOff           CellarRule = "off"
	CellarRuleBeforeCascade CellarRule = "before-cascade"
	CellarRuleAfterCascade  CellarRule = "after-cascade"
)

// Ladder holds the tunable rules of the position engine.
type Ladder struct {
	ExpiryWindow  time.Duration
	CellarRule    CellarRule
	CellarStreak  int
	RiskyInterval time.Duration
	Location      *time.Location
}

type SMTP struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type R2 struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL        string
	JWTSecretKey       string
	ServerPort         int
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	LogLevel           string

	Ladder Ladder
	SMTP   SMTP
	Kafka  Kafka
	R2     R2
}

// SMTPEnabled reports whether email notifications are configured.
func (c *Config) SMTPEnabled() bool { return c.SMTP.Host != "" && c.SMTP.From != "" }

// KafkaEnabled reports whether ladder events are published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 && c.Kafka.Topic != "" }

// R2Enabled reports whether snapshot export has a bucket to write to.
func (c *Config) R2Enabled() bool {
	return c.R2.AccountID != "" && c.R2.AccessKeyID != "" && c.R2.SecretAccessKey != "" && c.R2.BucketName != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from any key lookup, which keeps Load testable.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:  getenv("DATABASE_URL"),
		JWTSecretKey: getenv("JWT_SECRET_KEY"),
		LogLevel:     withDefault(getenv("LOG_LEVEL"), "info"),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	var err error
	if cfg.ServerPort, err = intVar(getenv, "SERVER_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}

	cfg.CORSAllowedOrigins = listVar(getenv("CORS_ALLOWED_ORIGINS"))
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if cfg.RateLimitRPS, err = floatVar(getenv, "RATE_LIMIT_RPS", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intVar(getenv, "RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}

	if cfg.Ladder, err = loadLadder(getenv); err != nil {
		return nil, err
	}

	cfg.SMTP = SMTP{
		Host: getenv("SMTP_HOST"),
		User: getenv("SMTP_USER"),
		Pass: getenv("SMTP_PASS"),
		From: getenv("SMTP_FROM"),
	}
	if cfg.SMTP.Port, err = intVar(getenv, "SMTP_PORT", 587); err != nil {
		return nil, err
	}

	cfg.Kafka = Kafka{
		Brokers: listVar(getenv("KAFKA_BROKERS")),
		Topic:   withDefault(getenv("KAFKA_TOPIC"), "ladder-events"),
	}

	cfg.R2 = R2{
		AccountID:       getenv("R2_ACCOUNT_ID"),
		AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
		SecretAccessKey: getenv("R2_SECRET_ACCESS_KEY"),
		BucketName:      getenv("R2_BUCKET_NAME"),
		PublicBaseURL:   getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func loadLadder(getenv func(string) string) (Ladder, error) {
	l := Ladder{}

	hours, err := intVar(getenv, "LADDER_EXPIRY_HOURS", 48)
	if err != nil {
		return l, err
	}
	if hours <= 0 {
		return l, fmt.Errorf("LADDER_EXPIRY_HOURS must be positive, got %d", hours)
	}
	l.ExpiryWindow = time.Duration(hours) * time.Hour

	l.CellarRule = CellarRule(withDefault(getenv("LADDER_CELLAR_RULE"), string(CellarRuleOff)))
	switch l.CellarRule {
	case CellarRuleOff, CellarRuleBeforeCascade, CellarRuleAfterCascade:
	default:
		return l, fmt.Errorf("LADDER_CELLAR_RULE must be one of off, before-cascade, after-cascade, got %q", l.CellarRule)
	}

	if l.CellarStreak, err = intVar(getenv, "LADDER_CELLAR_STREAK", 3); err != nil {
		return l, err
	}
	if l.CellarStreak < 1 {
		return l, fmt.Errorf("LADDER_CELLAR_STREAK must be at least 1, got %d", l.CellarStreak)
	}

	interval := withDefault(getenv("LADDER_RISKY_INTERVAL"), "1h")
	if l.RiskyInterval, err = time.ParseDuration(interval); err != nil {
		return l, fmt.Errorf("invalid LADDER_RISKY_INTERVAL: %w", err)
	}
	if l.RiskyInterval <= 0 {
		return l, fmt.Errorf("LADDER_RISKY_INTERVAL must be positive, got %s", l.RiskyInterval)
	}

	l.Location, err = time.LoadLocation(withDefault(getenv("LADDER_TIMEZONE"), "UTC"))
	if err != nil {
		return l, fmt.Errorf("invalid LADDER_TIMEZONE: %w", err)
	}
	return l, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func floatVar(getenv func(string) string, key string, def float64) (float64, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func listVar(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
