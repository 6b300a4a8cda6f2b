// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, SQLite, Kafka, Redis, Model, Analytics, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Record store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Records   RecordsConfig   `yaml:"records"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Model     ModelConfig     `yaml:"model"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RetrainPerMinute caps manual retrain triggers per client.
	RetrainPerMinute int `yaml:"retrainPerMinute"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig points at a local SQLite database used as the record store in
// development deployments.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RecordsConfig selects which record store supplies training pairs.
type RecordsConfig struct {
	Driver string `yaml:"driver"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ModelTrained         string `yaml:"modelTrained"`
	ClassificationEvents string `yaml:"classificationEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ModelConfig controls where the trained classifier lives on disk and how
// often it is refreshed.
type ModelConfig struct {
	Path            string        `yaml:"path"`
	MaxAgeDays      int           `yaml:"maxAgeDays"`
	RetrainInterval time.Duration `yaml:"retrainInterval"`
	Smoothing       float64       `yaml:"smoothing"`
	TrainingTimeout time.Duration `yaml:"trainingTimeout"`
	// AllowAutoTrainOnMissingModel trains synchronously at startup when no
	// artifact exists. Leave it off in production so a missing model is
	// reported to the operator instead.
	AllowAutoTrainOnMissingModel bool `yaml:"allowAutoTrainOnMissingModel"`
}

// MaxAge converts MaxAgeDays into a duration.
func (m ModelConfig) MaxAge() time.Duration {
	return time.Duration(m.MaxAgeDays) * 24 * time.Hour
}

// AnalyticsConfig controls classification event batching and snapshotting.
type AnalyticsConfig struct {
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the classifier cannot run with.
func (c *Config) Validate() error {
	if c.Model.Path == "" {
		return fmt.Errorf("invalid config: model.path is required")
	}
	if c.Model.Smoothing <= 0 {
		return fmt.Errorf("invalid config: model.smoothing must be > 0, got %v", c.Model.Smoothing)
	}
	if c.Model.MaxAgeDays <= 0 {
		return fmt.Errorf("invalid config: model.maxAgeDays must be > 0, got %d", c.Model.MaxAgeDays)
	}
	if c.Model.RetrainInterval <= 0 {
		return fmt.Errorf("invalid config: model.retrainInterval must be > 0")
	}
	switch c.Records.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid config: unknown records.driver %q", c.Records.Driver)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  15 * time.Second,
			RetrainPerMinute: 6,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "records",
			User:            "records",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "data/records.db",
		},
		Records: RecordsConfig{
			Driver: DriverPostgres,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "cause-classifier",
			Topics: KafkaTopics{
				ModelTrained:         "model.trained",
				ClassificationEvents: "classification-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Model: ModelConfig{
			Path:            "data/model/classifier.ccnb",
			MaxAgeDays:      5,
			RetrainInterval: 5 * time.Minute,
			Smoothing:       1.0,
			TrainingTimeout: 2 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads CC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CC_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("CC_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("CC_RECORDS_DRIVER"); v != "" {
		cfg.Records.Driver = v
	}
	if v := os.Getenv("CC_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("CC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CC_MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("CC_MODEL_MAX_AGE_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Model.MaxAgeDays = days
		}
	}
	if v := os.Getenv("CC_MODEL_RETRAIN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Model.RetrainInterval = d
		}
	}
	if v := os.Getenv("CC_MODEL_ALLOW_AUTO_TRAIN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Model.AllowAutoTrainOnMissingModel = b
		}
	}
	if v := os.Getenv("CC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
