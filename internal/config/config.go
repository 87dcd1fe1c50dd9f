package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// QUALITY_STORE_DSN for store.dsn.
const EnvPrefix = "QUALITY"

type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Store   StoreConfig   `mapstructure:"store"`
	Quality QualityConfig `mapstructure:"quality"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

type QualityConfig struct {
	MinAttempts        int     `mapstructure:"min_attempts"`
	AlternativeMargin  float64 `mapstructure:"alternative_margin"`
	EnhanceConcurrency int     `mapstructure:"enhance_concurrency"`
}

type AuthConfig struct {
	HMACSecret     string `mapstructure:"hmac_secret"`
	PublicKeysFile string `mapstructure:"public_keys_file"`
}

// Enabled reports whether any verification key is configured.
func (a AuthConfig) Enabled() bool {
	return a.HMACSecret != "" || a.PublicKeysFile != ""
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Retries      int           `mapstructure:"retries"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func SetDefaults(v *viper.Viper) {
	// -- HTTP --
	v.SetDefault("http.addr", ":8061")
	v.SetDefault("http.shutdown_timeout", "10s")

	// -- Store --
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "data/quality.db")
	v.SetDefault("store.write_timeout", "5s")
	v.SetDefault("store.read_timeout", "10s")

	// -- Quality --
	v.SetDefault("quality.min_attempts", 5)
	v.SetDefault("quality.alternative_margin", 20.0)
	v.SetDefault("quality.enhance_concurrency", 8)

	// -- Kafka --
	v.SetDefault("kafka.topic", "quality.events")
	v.SetDefault("kafka.retries", 3)
	v.SetDefault("kafka.write_timeout", "5s")

	// -- Archive --
	v.SetDefault("archive.prefix", "archive")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.service_name", "quality")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
}

// New returns a viper instance with defaults and environment overrides
// applied. When file is non-empty it is read as the config file.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load builds the configuration from defaults, an optional file and the
// environment.
func Load(file string) (*Config, error) {
	v, err := New(file)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"auth.hmac_secret", "auth.public_keys_file", "kafka.brokers", "archive.bucket", "archive.region", "logger.log_file"} {
		_ = v.BindEnv(key)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// splitList accepts both a YAML list and a comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	if c.Store.WriteTimeout <= 0 {
		return fmt.Errorf("store.write_timeout must be positive")
	}
	if c.Store.ReadTimeout <= 0 {
		return fmt.Errorf("store.read_timeout must be positive")
	}
	if c.Quality.MinAttempts < 1 {
		return fmt.Errorf("quality.min_attempts must be at least 1")
	}
	if c.Quality.AlternativeMargin < 0 {
		return fmt.Errorf("quality.alternative_margin must not be negative")
	}
	if c.Quality.EnhanceConcurrency <= 0 {
		return fmt.Errorf("quality.enhance_concurrency must be a positive integer")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	return nil
}
