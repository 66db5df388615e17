package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageDriver определяет backend хранилища снапшотов.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска агента синхронизации.
type Config struct {
	MetricsAddr string
	APIBaseURL  string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers    string // comma-separated; пустая строка отключает consumer
	KafkaGroupID    string
	KafkaMaxRetries int

	OrdersTTL    time.Duration
	ReferenceTTL time.Duration
	TaxonomyTTL  time.Duration

	ProbeInterval           time.Duration
	SnapshotCleanupInterval time.Duration
	SnapshotMaxAge          time.Duration

	StrictTransitions bool
}

// DefaultConfig возвращает базовую конфигурацию агента.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:             ":9090",
		APIBaseURL:              "http://localhost:8080",
		StorageDriver:           StorageDriverMemory,
		PostgresAutoMigrate:     true,
		KafkaGroupID:            "mosync-agent",
		KafkaMaxRetries:         3,
		OrdersTTL:               30 * time.Second,
		ReferenceTTL:            5 * time.Minute,
		TaxonomyTTL:             30 * time.Minute,
		ProbeInterval:           15 * time.Second,
		SnapshotCleanupInterval: time.Hour,
		SnapshotMaxAge:          7 * 24 * time.Hour,
	}
}

// ConfigFromEnv накладывает переменные окружения MOSYNC_* поверх DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	setString(&cfg.MetricsAddr, "MOSYNC_METRICS_ADDR")
	setString(&cfg.APIBaseURL, "MOSYNC_API_URL")
	setString(&cfg.PostgresDSN, "MOSYNC_POSTGRES_DSN")
	setString(&cfg.KafkaBrokers, "MOSYNC_KAFKA_BROKERS")
	setString(&cfg.KafkaGroupID, "MOSYNC_KAFKA_GROUP_ID")

	if v := strings.TrimSpace(os.Getenv("MOSYNC_STORAGE_DRIVER")); v != "" {
		cfg.StorageDriver = StorageDriver(v)
	}

	setBool(&cfg.PostgresAutoMigrate, "MOSYNC_POSTGRES_AUTO_MIGRATE")
	setBool(&cfg.StrictTransitions, "MOSYNC_STRICT_TRANSITIONS")

	setInt(&cfg.KafkaMaxRetries, "MOSYNC_KAFKA_MAX_RETRIES")

	setDuration(&cfg.OrdersTTL, "MOSYNC_ORDERS_TTL")
	setDuration(&cfg.ReferenceTTL, "MOSYNC_REFERENCE_TTL")
	setDuration(&cfg.TaxonomyTTL, "MOSYNC_TAXONOMY_TTL")
	setDuration(&cfg.ProbeInterval, "MOSYNC_PROBE_INTERVAL")
	setDuration(&cfg.SnapshotCleanupInterval, "MOSYNC_SNAPSHOT_CLEANUP_INTERVAL")
	setDuration(&cfg.SnapshotMaxAge, "MOSYNC_SNAPSHOT_MAX_AGE")

	return cfg
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			*dst = parsed
		}
	}
}
