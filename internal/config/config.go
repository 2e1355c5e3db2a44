package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

const (
	ServiceCore         = "core"
	ServiceNotification = "notification"

	DriverRabbitMQ = "rabbitmq"
	DriverKafka    = "kafka"
)

// ---- Root ----

type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	Log          LogConfig          `mapstructure:"log"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	MySQL        DatabaseConfig     `mapstructure:"mysql"`
	ClickHouse   DatabaseConfig     `mapstructure:"clickhouse"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Broker       BrokerConfig       `mapstructure:"broker"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Consumer     ConsumerConfig     `mapstructure:"consumer"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Channels     ChannelsConfig     `mapstructure:"channels"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ---- Leaf structs ----

type ServiceConfig struct {
	Name string `mapstructure:"name"` // core | notification
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr      string   `mapstructure:"addr"`
	AdminKeys []string `mapstructure:"admin_keys"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type BrokerConfig struct {
	Driver             string         `mapstructure:"driver"` // rabbitmq | kafka
	Exchange           string         `mapstructure:"exchange"`
	DeadLetterExchange string         `mapstructure:"dead_letter_exchange"`
	RabbitMQ           RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka              KafkaConfig    `mapstructure:"kafka"`
}

type RabbitMQConfig struct {
	URL            string        `mapstructure:"url"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	MinBytes     int           `mapstructure:"min_bytes"`
	MaxBytes     int           `mapstructure:"max_bytes"`
	ReceiveWait  time.Duration `mapstructure:"receive_wait"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type OutboxConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type ConsumerConfig struct {
	EmptyWait      time.Duration `mapstructure:"empty_wait"`
	Backoff        time.Duration `mapstructure:"backoff"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type ProviderConfig struct {
	Name      string        `mapstructure:"name"`
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Path      string        `mapstructure:"path"`
	Token     string        `mapstructure:"token"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type ChannelsConfig struct {
	MaxAttempts        int              `mapstructure:"max_attempts"`
	DefaultCountryCode string           `mapstructure:"default_country_code"`
	Email              []ProviderConfig `mapstructure:"email"`
	WhatsApp           []ProviderConfig `mapstructure:"whatsapp"`
	Groups             ProviderConfig   `mapstructure:"groups"`
}

type NotificationConfig struct {
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (RETREAT_*).
func Load(path string) (Config, error) {
	return LoadFor(path, "")
}

// LoadFor is Load with the service role forced to service when it is not empty.
func LoadFor(path, service string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (RETREAT_BROKER_RABBITMQ_URL, ...)
	v.SetEnvPrefix("RETREAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if service != "" {
		v.Set("service.name", service)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations no command can run with.
func (c Config) Validate() error {
	switch c.Service.Name {
	case ServiceCore, ServiceNotification:
	default:
		return fmt.Errorf("unknown service %q", c.Service.Name)
	}
	switch c.Broker.Driver {
	case DriverRabbitMQ, DriverKafka:
	default:
		return fmt.Errorf("unknown broker driver %q", c.Broker.Driver)
	}
	if strings.TrimSpace(c.Broker.Exchange) == "" {
		return fmt.Errorf("broker exchange is required")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("invalid outbox batch size: %d", c.Outbox.BatchSize)
	}
	return nil
}
