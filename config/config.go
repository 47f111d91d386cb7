package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type (
	Config struct {
		Port            string
		AllowedOrigins  []string
		Storage         Storage
		MaxUploadBytes  int64
		RequestTimeout  time.Duration
		ShutdownTimeout time.Duration
		Kafka           Kafka
		LogLevel        logrus.Level
	}

	Storage struct {
		Type           string
		LocalPath      string
		DataSourceName string
		DatabaseURL    string
		S3Bucket       string
		S3Endpoint     string
	}

	Kafka struct {
		Brokers []string
		Topic   string
	}
)

const (
	defaultPort           = "3001"
	defaultMaxUploadBytes = 5 << 20
	defaultOrigin         = "http://localhost:5173"
)

// Load reads .env from the working directory, if present, and then the
// process environment. Variables already set win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:           getenvDefault(getenv, "PORT", defaultPort),
		AllowedOrigins: splitList(getenvDefault(getenv, "CORS_ALLOWED_ORIGINS", defaultOrigin)),
		Storage: Storage{
			Type:           getenv("STORAGE_TYPE"),
			LocalPath:      getenvDefault(getenv, "LOCAL_STORAGE_PATH", "./data"),
			DataSourceName: getenvDefault(getenv, "DATA_SOURCE_NAME", "./entity-store.db"),
			DatabaseURL:    getenv("DATABASE_URL"),
			S3Bucket:       getenv("S3_BUCKET_NAME"),
			S3Endpoint:     getenv("S3_ENDPOINT"),
		},
		Kafka: Kafka{
			Brokers: splitList(getenv("KAFKA_BROKERS")),
			Topic:   getenvDefault(getenv, "KAFKA_TOPIC", "record-events"),
		},
	}

	var err error
	if cfg.MaxUploadBytes, err = parseInt(getenv, "MAX_UPLOAD_BYTES", defaultMaxUploadBytes); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = parseDuration(getenv, "REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = parseDuration(getenv, "SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = logrus.ParseLevel(getenvDefault(getenv, "LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, fmt.Errorf("PORT: %w", err)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func getenvDefault(getenv func(string) string, key, fallback string) string {
	if value := strings.TrimSpace(getenv(key)); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		// Browsers send Origin without a trailing slash.
		if item = strings.TrimSuffix(strings.TrimSpace(item), "/"); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseInt(getenv func(string) string, key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return value, nil
}

func parseDuration(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return value, nil
}
