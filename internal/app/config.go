package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vladislavdragonenkov/orders-api/internal/messaging/kafka"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	// EnvPrefix - префикс переменных окружения: ORDERS_HTTP_ADDR -> http_addr.
	EnvPrefix = "ORDERS_"
	// EnvConfigFile задаёт путь к YAML-файлу, если не передан флаг -config.
	EnvConfigFile = EnvPrefix + "CONFIG_FILE"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	HTTPAddr         string        `koanf:"http_addr"`
	APIVersion       int           `koanf:"api_version"`
	HTTPReadTimeout  time.Duration `koanf:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `koanf:"http_write_timeout"`
	HTTPIdleTimeout  time.Duration `koanf:"http_idle_timeout"`
	GRPCAddr         string        `koanf:"grpc_addr"`
	MetricsAddr      string        `koanf:"metrics_addr"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`

	StorageDriver           string        `koanf:"storage_driver"`
	PostgresDSN             string        `koanf:"postgres_dsn"`
	PostgresAutoMigrate     bool          `koanf:"postgres_auto_migrate"`
	PostgresMaxOpenConns    int           `koanf:"postgres_max_open_conns"`
	PostgresMaxIdleConns    int           `koanf:"postgres_max_idle_conns"`
	PostgresConnMaxLifetime time.Duration `koanf:"postgres_conn_max_lifetime"`

	// RedisAddr пустой - кэш каталога выключен.
	RedisAddr       string        `koanf:"redis_addr"`
	RedisPassword   string        `koanf:"redis_password"`
	RedisDB         int           `koanf:"redis_db"`
	ProductCacheTTL time.Duration `koanf:"product_cache_ttl"`

	// KafkaBrokers пустой - события заказов в outbox не пишутся.
	KafkaBrokers  []string `koanf:"kafka_brokers"`
	KafkaClientID string   `koanf:"kafka_client_id"`
	KafkaTopic    string   `koanf:"kafka_topic"`
	KafkaDLQTopic string   `koanf:"kafka_dlq_topic"`

	OutboxPollInterval time.Duration `koanf:"outbox_poll_interval"`
	OutboxBatchSize    int           `koanf:"outbox_batch_size"`
	OutboxMaxAttempts  int           `koanf:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `koanf:"outbox_retry_delay"`

	// OutboxMaxPending - backlog, выше которого /healthz помечает outbox как degraded.
	OutboxMaxPending int `koanf:"outbox_max_pending"`

	IdempotencyTTL              time.Duration `koanf:"idempotency_ttl"`
	IdempotencyCleanupInterval  time.Duration `koanf:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `koanf:"idempotency_cleanup_batch_size"`

	LogLevel      string `koanf:"log_level"`
	LogFormat     string `koanf:"log_format"`
	LogFile       string `koanf:"log_file"`
	LogMaxSizeMB  int    `koanf:"log_max_size_mb"`
	LogMaxBackups int    `koanf:"log_max_backups"`
	LogMaxAgeDays int    `koanf:"log_max_age_days"`
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:         ":8080",
		APIVersion:       1,
		HTTPReadTimeout:  10 * time.Second,
		HTTPWriteTimeout: 10 * time.Second,
		HTTPIdleTimeout:  60 * time.Second,
		GRPCAddr:         ":50051",
		MetricsAddr:      ":9090",
		ShutdownTimeout:  5 * time.Second,

		StorageDriver:           StorageDriverMemory,
		PostgresAutoMigrate:     true,
		PostgresMaxOpenConns:    25,
		PostgresMaxIdleConns:    25,
		PostgresConnMaxLifetime: 30 * time.Minute,

		ProductCacheTTL: 5 * time.Minute,

		KafkaClientID: "orders-api",
		KafkaTopic:    kafka.TopicOrderEvents,
		KafkaDLQTopic: kafka.TopicDeadLetterQueue,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  5,
		OutboxRetryDelay:   500 * time.Millisecond,
		OutboxMaxPending:   1000,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
		LogMaxAgeDays: 7,
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл
// (если path не пустой), затем переменные окружения ORDERS_*.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env overlay: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitBrokers(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigPathFromEnv возвращает путь к файлу конфигурации из ORDERS_CONFIG_FILE.
func ConfigPathFromEnv() string {
	return strings.TrimSpace(os.Getenv(EnvConfigFile))
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres_dsn is required for %q storage driver", StorageDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.APIVersion <= 0 {
		return fmt.Errorf("api_version must be positive, got %d", c.APIVersion)
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxPollInterval <= 0 {
		return fmt.Errorf("outbox batch size, max attempts and poll interval must be positive")
	}
	if c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		return fmt.Errorf("idempotency cleanup interval and batch size must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka_topic is required when kafka_brokers is set")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	return nil
}

// splitBrokers нормализует список брокеров: "a:9092, b:9092" и пустые элементы.
func splitBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		for _, b := range strings.Split(item, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
