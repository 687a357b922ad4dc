// Package config populates service settings from environment variables, with
// an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Push channel modes.
const (
	PushModeLog   = "log"
	PushModeFCM   = "fcm"
	PushModeKafka = "kafka"
)

// Config holds all service settings.
type Config struct {
	// Upstream weather provider.
	KMAAPIKey  string
	KMABaseURL string
	KMATimeout time.Duration

	HTTPAddr string

	// RedisAddr empty means the in-process memory store backs the cache and
	// send records. Fine for a single replica, required for more than one.
	RedisAddr  string
	SQLitePath string

	// Push channel.
	PushMode       string
	PushEndpoint   string
	PushServerKey  string
	KafkaBrokers   []string
	KafkaPushTopic string

	// Scheduler timing.
	TickInterval     time.Duration
	TickJitter       time.Duration
	DueWindow        time.Duration
	FetchConcurrency int

	// Cache TTLs.
	CompareCacheTTL  time.Duration
	ExtremesCacheTTL time.Duration
	SendRecordTTL    time.Duration

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	DefaultTZ       string
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is merged in first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		KMAAPIKey:  os.Getenv("KMA_API_KEY"),
		KMABaseURL: envOrDefault("KMA_BASE_URL", "https://apis.data.go.kr/1360000/VilageFcstInfoService_2.0"),
		HTTPAddr:   envOrDefault("HTTP_ADDR", ":8080"),
		RedisAddr:  os.Getenv("REDIS_ADDR"),
		SQLitePath: envOrDefault("SQLITE_PATH", "yesterday.db"),

		PushMode:       envOrDefault("PUSH_MODE", PushModeLog),
		PushEndpoint:   os.Getenv("PUSH_ENDPOINT"),
		PushServerKey:  os.Getenv("PUSH_SERVER_KEY"),
		KafkaBrokers:   parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaPushTopic: envOrDefault("KAFKA_PUSH_TOPIC", "push-notifications"),

		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),
		DefaultTZ: envOrDefault("DEFAULT_TZ", "Asia/Seoul"),
	}

	var err error
	if cfg.KMATimeout, err = parseDuration("KMA_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.TickInterval, err = parseDuration("TICK_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TickJitter, err = parseDuration("TICK_JITTER", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.DueWindow, err = parseDuration("DUE_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CompareCacheTTL, err = parseDuration("COMPARE_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ExtremesCacheTTL, err = parseDuration("EXTREMES_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.SendRecordTTL, err = parseDuration("SEND_RECORD_TTL", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = parseInt("FETCH_CONCURRENCY", 8); err != nil {
		return nil, err
	}

	if cfg.KMAAPIKey == "" {
		return nil, errors.New("KMA_API_KEY is required")
	}
	if cfg.DueWindow < cfg.TickInterval {
		return nil, errors.New("DUE_WINDOW must be at least TICK_INTERVAL, or target times can fall between ticks")
	}
	if cfg.SendRecordTTL < 24*time.Hour {
		return nil, errors.New("SEND_RECORD_TTL must be at least 24h")
	}
	if _, err := time.LoadLocation(cfg.DefaultTZ); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TZ %q: %w", cfg.DefaultTZ, err)
	}

	switch cfg.PushMode {
	case PushModeLog:
	case PushModeFCM:
		if cfg.PushEndpoint == "" {
			return nil, errors.New("PUSH_MODE=fcm requires PUSH_ENDPOINT")
		}
	case PushModeKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("PUSH_MODE=kafka requires KAFKA_BROKERS")
		}
		if cfg.KafkaPushTopic == "" {
			return nil, errors.New("PUSH_MODE=kafka requires KAFKA_PUSH_TOPIC")
		}
	default:
		return nil, fmt.Errorf("invalid PUSH_MODE %q (want log, fcm, or kafka)", cfg.PushMode)
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration", key, s)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive integer", key, s)
	}
	return n, nil
}
