// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Postgres, Kafka, Redis, Pipeline, Logging, Metrics, Retry).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Retry    RetryConfig    `yaml:"retry"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Documents string `yaml:"documents"`
	Records   string `yaml:"records"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// The cache is bypassed after BreakerThreshold consecutive failures and
	// retried once BreakerReset has passed.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// FieldSelection picks the component and fields extracted for one type.
type FieldSelection struct {
	Component string   `yaml:"component"`
	Fields    []string `yaml:"fields"`
}

// PipelineConfig controls how staged documents are annotated and flattened.
type PipelineConfig struct {
	Annotators             []string                  `yaml:"annotators"`
	Context                string                    `yaml:"context"`
	Offset                 int                       `yaml:"offset"`
	BatchSize              int                       `yaml:"batchSize"`
	Annotations            map[string]FieldSelection `yaml:"annotations"`
	Links                  map[string]FieldSelection `yaml:"links"`
	Groups                 map[string]FieldSelection `yaml:"groups"`
	CollectorBatchSize     int                       `yaml:"collectorBatchSize"`
	CollectorFlushInterval time.Duration             `yaml:"collectorFlushInterval"`
	StageTimeout           time.Duration             `yaml:"stageTimeout"`
}

// RetryConfig controls backoff for calls to external stores.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
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
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Pipeline.BatchSize <= 0 {
		problems = append(problems, "pipeline.batchSize must be positive")
	}
	if c.Pipeline.Offset < 0 {
		problems = append(problems, "pipeline.offset must not be negative")
	}
	if c.Pipeline.StageTimeout < 0 {
		problems = append(problems, "pipeline.stageTimeout must not be negative")
	}
	if c.Pipeline.CollectorBatchSize <= 0 {
		problems = append(problems, "pipeline.collectorBatchSize must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		problems = append(problems, "retry.maxAttempts must be positive")
	}
	if len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers must not be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Enabled:         true,
			Host:            "localhost",
			Port:            5432,
			Database:        "datapack",
			User:            "datapack",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "datapack-stager",
			Topics: KafkaTopics{
				Documents: "datapack.documents",
				Records:   "datapack.records",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize:         10,
			CacheTTL:         10 * time.Minute,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Annotators:             []string{"builtin-sentence", "builtin-tokenizer"},
			Context:                "Sentence",
			BatchSize:              32,
			Annotations:            map[string]FieldSelection{"Token": {Fields: []string{"term", "stem"}}},
			CollectorBatchSize:     100,
			CollectorFlushInterval: 5 * time.Second,
			StageTimeout:           30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
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

// applyEnvOverrides reads DP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DP_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("DP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("DP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DP_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("DP_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("DP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DP_PIPELINE_CONTEXT"); v != "" {
		cfg.Pipeline.Context = v
	}
	if v := os.Getenv("DP_PIPELINE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.BatchSize = n
		}
	}
	if v := os.Getenv("DP_PIPELINE_STAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.StageTimeout = d
		}
	}
	if v := os.Getenv("DP_PIPELINE_ANNOTATORS"); v != "" {
		cfg.Pipeline.Annotators = strings.Split(v, ",")
	}
	if v := os.Getenv("DP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DP_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
