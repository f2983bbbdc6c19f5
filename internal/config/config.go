// Package config loads runtime configuration from an optional YAML file and
// the environment. Environment variables use the BACKOFFICE_ prefix with
// underscores for nesting, e.g. BACKOFFICE_RELAY_BATCH_SIZE.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	TransportInproc = "inproc"
	TransportKafka  = "kafka"

	StorageMemory = "memory"
	StorageMySQL  = "mysql"
)

type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	Transport string `mapstructure:"transport"`
	Storage   string `mapstructure:"storage"`

	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Workers WorkersConfig `mapstructure:"workers"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Sales   SalesConfig   `mapstructure:"sales"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type KafkaConfig struct {
	Brokers      string `mapstructure:"brokers"`
	GroupID      string `mapstructure:"group_id"`
	DefaultTopic string `mapstructure:"default_topic"`
}

type RelayConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type WorkersConfig struct {
	StuckInterval       time.Duration `mapstructure:"stuck_interval"`
	StuckTimeout        time.Duration `mapstructure:"stuck_timeout"`
	DeadLetterInterval  time.Duration `mapstructure:"dead_letter_interval"`
	CleanupInterval     time.Duration `mapstructure:"cleanup_interval"`
	SentRetention       time.Duration `mapstructure:"sent_retention"`
	DeadLetterRetention time.Duration `mapstructure:"dead_letter_retention"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SalesConfig struct {
	TaxRateBps int64 `mapstructure:"tax_rate_bps"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("transport", TransportInproc)
	v.SetDefault("storage", StorageMemory)

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.group_id", "backoffice")
	v.SetDefault("kafka.default_topic", "backoffice-events")

	v.SetDefault("relay.interval", 5*time.Second)
	v.SetDefault("relay.batch_size", 20)
	v.SetDefault("relay.max_attempts", 5)
	v.SetDefault("relay.base_delay", 30*time.Second)
	v.SetDefault("relay.max_delay", 30*time.Minute)

	v.SetDefault("workers.stuck_interval", time.Minute)
	v.SetDefault("workers.stuck_timeout", 10*time.Minute)
	v.SetDefault("workers.dead_letter_interval", time.Minute)
	v.SetDefault("workers.cleanup_interval", time.Hour)
	v.SetDefault("workers.sent_retention", 24*time.Hour)
	v.SetDefault("workers.dead_letter_retention", 7*24*time.Hour)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "noreply@example.com")

	v.SetDefault("sales.tax_rate_bps", 1000)

	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Transport {
	case TransportInproc, TransportKafka:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.Storage {
	case StorageMemory, StorageMySQL:
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	if c.Storage == StorageMySQL && c.MySQL.DSN == "" {
		return fmt.Errorf("mysql storage requires mysql.dsn")
	}
	if c.Relay.BatchSize <= 0 {
		return fmt.Errorf("relay.batch_size must be positive")
	}
	if c.Relay.MaxAttempts <= 0 {
		return fmt.Errorf("relay.max_attempts must be positive")
	}
	return nil
}
