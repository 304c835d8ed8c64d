package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// EnvPrefix: префикс переменных окружения: STOREFRONT_HTTP_ADDR и т.д.
const EnvPrefix = "STOREFRONT"

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	GRPCAddr    string `mapstructure:"grpc_addr"`
	LogLevel    string `mapstructure:"log_level"`

	StorageDriver       string `mapstructure:"storage_driver"`
	PostgresDSN         string `mapstructure:"postgres_dsn"`
	PostgresAutoMigrate bool   `mapstructure:"postgres_auto_migrate"`

	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	KafkaTopic    string   `mapstructure:"kafka_topic"`
	KafkaDLQTopic string   `mapstructure:"kafka_dlq_topic"`

	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	OutboxMaxAttempts  int           `mapstructure:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `mapstructure:"outbox_retry_delay"`

	IdempotencyTTL              time.Duration `mapstructure:"idempotency_ttl"`
	IdempotencyCleanupInterval  time.Duration `mapstructure:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `mapstructure:"idempotency_cleanup_batch_size"`

	MaxPageSize         int           `mapstructure:"max_page_size"`
	OrderNumberLocation string        `mapstructure:"order_number_location"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		GRPCAddr:                    ":50051",
		LogLevel:                    "info",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		KafkaTopic:                  "storefront.order.events",
		KafkaDLQTopic:               "storefront.order.events.dlq",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		MaxPageSize:                 query.MaxSize,
		OrderNumberLocation:         "UTC",
		ShutdownTimeout:             5 * time.Second,
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage_driver %q (use memory|postgres)", c.StorageDriver))
	}

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := time.LoadLocation(c.OrderNumberLocation); err != nil {
		errs = append(errs, fmt.Errorf("order_number_location: %w", err))
	}

	for _, f := range []struct {
		name  string
		value int
	}{
		{"outbox_batch_size", c.OutboxBatchSize},
		{"outbox_max_attempts", c.OutboxMaxAttempts},
		{"idempotency_cleanup_batch_size", c.IdempotencyCleanupBatchSize},
		{"max_page_size", c.MaxPageSize},
	} {
		if f.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.value))
		}
	}
	if c.MaxPageSize > query.MaxSize {
		errs = append(errs, fmt.Errorf("max_page_size must not exceed %d", query.MaxSize))
	}
	if c.OutboxPollInterval <= 0 || c.IdempotencyCleanupInterval <= 0 || c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("outbox_poll_interval, idempotency_cleanup_interval and idempotency_ttl must be positive"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox_retry_delay must not be negative"))
	}

	return errors.Join(errs...)
}

// Location возвращает часовой пояс нумерации заказов.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.OrderNumberLocation)
	if err != nil {
		return time.UTC
	}
	return loc
}

// KafkaEnabled сообщает, настроены ли брокеры.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// NewViper создаёт viper с дефолтами из DefaultConfig и чтением STOREFRONT_* из окружения.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("grpc_addr", d.GRPCAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("storage_driver", d.StorageDriver)
	v.SetDefault("postgres_dsn", d.PostgresDSN)
	v.SetDefault("postgres_auto_migrate", d.PostgresAutoMigrate)
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_topic", d.KafkaTopic)
	v.SetDefault("kafka_dlq_topic", d.KafkaDLQTopic)
	v.SetDefault("outbox_poll_interval", d.OutboxPollInterval)
	v.SetDefault("outbox_batch_size", d.OutboxBatchSize)
	v.SetDefault("outbox_max_attempts", d.OutboxMaxAttempts)
	v.SetDefault("outbox_retry_delay", d.OutboxRetryDelay)
	v.SetDefault("idempotency_ttl", d.IdempotencyTTL)
	v.SetDefault("idempotency_cleanup_interval", d.IdempotencyCleanupInterval)
	v.SetDefault("idempotency_cleanup_batch_size", d.IdempotencyCleanupBatchSize)
	v.SetDefault("max_page_size", d.MaxPageSize)
	v.SetDefault("order_number_location", d.OrderNumberLocation)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	return v
}

// LoadConfig читает необязательный файл конфигурации и собирает Config.
func LoadConfig(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = splitBrokers(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// splitBrokers раскрывает значения вида "a:9092,b:9092" и убирает пустые.
func splitBrokers(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, broker := range strings.Split(item, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				out = append(out, broker)
			}
		}
	}
	return out
}

// SetupLogger настраивает формат и уровень логирования.
func SetupLogger(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(lvl)
	return nil
}

// WatchLogLevel перечитывает log_level при изменении файла конфигурации.
// Остальные настройки применяются только после перезапуска.
func WatchLogLevel(v *viper.Viper, logger *log.Entry) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		applyLogLevel(v.GetString("log_level"), logger)
	})
	v.WatchConfig()
}

func applyLogLevel(raw string, logger *log.Entry) {
	lvl, err := log.ParseLevel(raw)
	if err != nil {
		logger.WithError(err).Warn("ignoring invalid log_level from config change")
		return
	}
	if lvl == log.GetLevel() {
		return
	}
	log.SetLevel(lvl)
	logger.WithField("level", lvl.String()).Info("log level changed")
}
