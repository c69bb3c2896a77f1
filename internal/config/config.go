package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the translation relay.
type Config struct {
	Host             string
	Port             int
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	SecretKey string
	TokenTTL  time.Duration

	TranslatorMode       string
	DeepLAPIKey          string
	DeepLAPIURL          string
	TranslatorHTTPURL    string
	TranslatorHTTPAPIKey string
	TranslatorTimeout    time.Duration
	TranslatorRetries    int

	MaxMessageSize  int
	WSReadLimit     int64
	SpeechQueueSize int
	SendBufferSize  int

	LogLevel  string
	LogFormat string

	DatabaseURL string
}

// BindAddr is the host:port the HTTP server listens on.
func (c Config) BindAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:                 envOrDefault("WS_IP", "0.0.0.0"),
		Port:                 8765,
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "livetranslator"),
		AllowAnyOrigin:       false,
		SecretKey:            strings.TrimSpace(os.Getenv("SECRET_KEY")),
		TokenTTL:             24 * time.Hour,
		TranslatorMode:       strings.ToLower(envOrDefault("TRANSLATOR_MODE", "auto")),
		DeepLAPIKey:          strings.TrimSpace(os.Getenv("DEEPL_API_KEY")),
		DeepLAPIURL:          strings.TrimSpace(os.Getenv("DEEPL_API_URL")),
		TranslatorHTTPURL:    strings.TrimSpace(os.Getenv("TRANSLATOR_HTTP_URL")),
		TranslatorHTTPAPIKey: strings.TrimSpace(os.Getenv("TRANSLATOR_HTTP_API_KEY")),
		TranslatorTimeout:    15 * time.Second,
		TranslatorRetries:    1,
		MaxMessageSize:       10000,
		WSReadLimit:          1 << 20,
		SpeechQueueSize:      16,
		SendBufferSize:       256,
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		LogFormat:            envOrDefault("LOG_FORMAT", "console"),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ShutdownTimeout:      15 * time.Second,
	}

	var err error
	if cfg.Port, err = intFromEnv("WS_PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = durationFromEnv("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.TranslatorTimeout, err = durationFromEnv("TRANSLATOR_TIMEOUT", cfg.TranslatorTimeout); err != nil {
		return Config{}, err
	}
	if cfg.TranslatorRetries, err = intFromEnv("TRANSLATOR_RETRIES", cfg.TranslatorRetries); err != nil {
		return Config{}, err
	}
	if cfg.MaxMessageSize, err = intFromEnv("MAX_MESSAGE_SIZE", cfg.MaxMessageSize); err != nil {
		return Config{}, err
	}
	readLimit, err := intFromEnv("WS_READ_LIMIT", int(cfg.WSReadLimit))
	if err != nil {
		return Config{}, err
	}
	cfg.WSReadLimit = int64(readLimit)
	if cfg.SpeechQueueSize, err = intFromEnv("SPEECH_QUEUE_SIZE", cfg.SpeechQueueSize); err != nil {
		return Config{}, err
	}
	if cfg.SendBufferSize, err = intFromEnv("SEND_BUFFER_SIZE", cfg.SendBufferSize); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("WS_PORT must be in 1..65535")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	switch c.TranslatorMode {
	case "mock":
	case "auto":
		if c.DeepLAPIKey == "" && c.TranslatorHTTPURL == "" {
			return fmt.Errorf("TRANSLATOR_MODE=auto requires DEEPL_API_KEY or TRANSLATOR_HTTP_URL (use TRANSLATOR_MODE=mock for local testing)")
		}
	case "deepl":
		if c.DeepLAPIKey == "" {
			return fmt.Errorf("DEEPL_API_KEY is required when TRANSLATOR_MODE=deepl")
		}
	case "libre":
		if c.TranslatorHTTPURL == "" {
			return fmt.Errorf("TRANSLATOR_HTTP_URL is required when TRANSLATOR_MODE=libre")
		}
	default:
		return fmt.Errorf("TRANSLATOR_MODE must be one of auto, deepl, libre, mock")
	}
	if c.TranslatorRetries < 0 {
		return fmt.Errorf("TRANSLATOR_RETRIES must be >= 0")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be positive")
	}
	if c.WSReadLimit < int64(c.MaxMessageSize) {
		return fmt.Errorf("WS_READ_LIMIT must be at least MAX_MESSAGE_SIZE")
	}
	if c.SpeechQueueSize <= 0 {
		return fmt.Errorf("SPEECH_QUEUE_SIZE must be positive")
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be positive")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
