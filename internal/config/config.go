package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds all runtime settings. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	Addr     string
	Database string
	BaseURL  string
	Debug    bool

	CTMSURL          string
	CTMSClientID     string
	CTMSClientSecret string

	QueuePollInterval time.Duration
	QueueMaxAttempts  int

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:     getEnv("ADDR", ":8000"),
		Database: getEnv("DATABASE_PATH", "pannier.db"),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8000"),
		Debug:    getEnvBool("DEBUG", false),

		CTMSURL:          getEnv("CTMS_URL", ""),
		CTMSClientID:     getEnv("CTMS_CLIENT_ID", ""),
		CTMSClientSecret: getEnv("CTMS_CLIENT_SECRET", ""),

		SMTPHost: getEnv("SMTP_HOST", ""),
		SMTPUser: getEnv("SMTP_USER", ""),
		SMTPPass: getEnv("SMTP_PASS", ""),
		SMTPFrom: getEnv("SMTP_FROM", "no-reply@localhost"),
	}

	var err error
	cfg.SMTPPort, err = getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	cfg.QueueMaxAttempts, err = getEnvInt("QUEUE_MAX_ATTEMPTS", 6)
	if err != nil {
		return nil, err
	}
	cfg.QueuePollInterval, err = getEnvDuration("QUEUE_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewLogger builds the process logger. Debug mode switches to the
// human-readable development encoder.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
