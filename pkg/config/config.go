package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override, e.g. FINCAST_SERVER_PORT.
const EnvPrefix = "FINCAST"

type Config struct {
	Environment string          `yaml:"environment" split_words:"true"`
	Server      ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Metrics     MetricsConfig   `yaml:"metrics" envconfig:"METRICS"`
	Logging     LoggingConfig   `yaml:"logging" envconfig:"LOG"`
	Forecast    ForecastConfig  `yaml:"forecast" envconfig:"FORECAST"`
	Cache       CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	RateLimit   RateLimitConfig `yaml:"ratelimit" envconfig:"RATELIMIT"`
	ClickHouse  ClickHouse      `yaml:"clickhouse" envconfig:"CLICKHOUSE"`
	Kafka       KafkaConfig     `yaml:"kafka" envconfig:"KAFKA"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" split_words:"true"`
	AllowedOrigins  []string      `yaml:"allowed_origins" split_words:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" split_words:"true"`
	Path    string `yaml:"path" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
	Output string `yaml:"output" split_words:"true"`
	// Engines maps a strategy token to its append-only log file.
	Engines map[string]string `yaml:"engines" split_words:"true"`
	// ErrorDigest publishes aggregated error lines to kafka.errors_topic.
	ErrorDigest         bool          `yaml:"error_digest" split_words:"true"`
	ErrorDigestInterval time.Duration `yaml:"error_digest_interval" split_words:"true"`
}

type ForecastConfig struct {
	Workers       int                 `yaml:"workers" split_words:"true"`
	LagCount      int                 `yaml:"lag_count" split_words:"true"`
	Seasonal      SeasonalConfig      `yaml:"seasonal" envconfig:"SEASONAL"`
	Decomposition DecompositionConfig `yaml:"decomposition" envconfig:"DECOMPOSITION"`
	Boosting      BoostingConfig      `yaml:"boosting" envconfig:"BOOSTING"`
}

type SeasonalConfig struct {
	Period    int    `yaml:"period" split_words:"true"`
	MaxP      int    `yaml:"max_p" split_words:"true"`
	MaxQ      int    `yaml:"max_q" split_words:"true"`
	MaxD      int    `yaml:"max_d" split_words:"true"`
	MaxSP     int    `yaml:"max_seasonal_p" split_words:"true"`
	MaxSQ     int    `yaml:"max_seasonal_q" split_words:"true"`
	MaxSD     int    `yaml:"max_seasonal_d" split_words:"true"`
	MaxOrder  int    `yaml:"max_order" split_words:"true"` // 0: unbounded
	MaxModels int    `yaml:"max_models" split_words:"true"`
	MaxIter   int    `yaml:"max_iter" split_words:"true"`
	Criterion string `yaml:"criterion" split_words:"true"`
}

type DecompositionConfig struct {
	FourierOrder          int     `yaml:"fourier_order" split_words:"true"`
	MaxChangepoints       int     `yaml:"max_changepoints" split_words:"true"`
	ChangepointRange      float64 `yaml:"changepoint_range" split_words:"true"`
	ChangepointPriorScale float64 `yaml:"changepoint_prior_scale" split_words:"true"`
	SeasonalityPriorScale float64 `yaml:"seasonality_prior_scale" split_words:"true"`
}

type BoostingConfig struct {
	Stages          int     `yaml:"stages" split_words:"true"`
	MaxDepth        int     `yaml:"max_depth" split_words:"true"`
	LearningRate    float64 `yaml:"learning_rate" split_words:"true"`
	MinSamplesSplit int     `yaml:"min_samples_split" split_words:"true"`
	MinSamplesLeaf  int     `yaml:"min_samples_leaf" split_words:"true"`
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" split_words:"true"`
	Backend    string        `yaml:"backend" split_words:"true"` // memory or redis
	TTL        time.Duration `yaml:"ttl" split_words:"true"`
	MaxEntries int           `yaml:"max_entries" split_words:"true"`
	Redis      struct {
		Addr     string `yaml:"addr" split_words:"true"`
		Password string `yaml:"password" split_words:"true"`
		DB       int    `yaml:"db" split_words:"true"`
	} `yaml:"redis" envconfig:"REDIS"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" split_words:"true"`
	Rate    float64 `yaml:"rate" split_words:"true"` // tokens per second
	Burst   int     `yaml:"burst" split_words:"true"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled" split_words:"true"`
	Host             string        `yaml:"host" split_words:"true"`
	Port             int           `yaml:"port" split_words:"true"`
	Database         string        `yaml:"database" split_words:"true"`
	Table            string        `yaml:"table" split_words:"true"`
	User             string        `yaml:"user" split_words:"true"`
	Password         string        `yaml:"password" split_words:"true"`
	UseHTTP          bool          `yaml:"use_http" split_words:"true"`
	AsyncInsert      bool          `yaml:"async_insert" split_words:"true"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" split_words:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" split_words:"true"`
	ReadTimeout      time.Duration `yaml:"read_timeout" split_words:"true"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" split_words:"true"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled" split_words:"true"`
	Brokers       []string `yaml:"brokers" split_words:"true"`
	RequestsTopic string   `yaml:"requests_topic" split_words:"true"`
	ResultsTopic  string   `yaml:"results_topic" split_words:"true"`
	ErrorsTopic   string   `yaml:"errors_topic" split_words:"true"`
	RequiredAcks  int      `yaml:"required_acks" split_words:"true"`
	Compression   string   `yaml:"compression" split_words:"true"`
	Producer      struct {
		MaxAttempts  int           `yaml:"max_attempts" split_words:"true"`
		Linger       time.Duration `yaml:"linger" split_words:"true"`
		BatchBytes   int           `yaml:"batch_bytes" split_words:"true"`
		BatchSize    int           `yaml:"batch_size" split_words:"true"`
		WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
		ReadTimeout  time.Duration `yaml:"read_timeout" split_words:"true"`
		Async        bool          `yaml:"async" split_words:"true"`
	} `yaml:"producer" envconfig:"PRODUCER"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" split_words:"true"`
		Workers    int           `yaml:"workers" split_words:"true"`
		BufferSize int           `yaml:"buffer_size" split_words:"true"`
		RetryMax   int           `yaml:"retry_max" split_words:"true"`
		BackoffMin time.Duration `yaml:"backoff_min" split_words:"true"`
		BackoffMax time.Duration `yaml:"backoff_max" split_words:"true"`
		DLQTopic   string        `yaml:"dlq_topic" split_words:"true"`
		MinBytes   int           `yaml:"min_bytes" split_words:"true"`
		MaxBytes   int           `yaml:"max_bytes" split_words:"true"`
		JobTimeout time.Duration `yaml:"job_timeout" split_words:"true"`
	} `yaml:"consumer" envconfig:"CONSUMER"`
}

// Default returns a configuration that runs the HTTP API alone, with every
// external backend disabled.
func Default() *Config {
	c := &Config{Environment: "development"}

	c.Server.Port = 8080
	c.Server.ReadTimeout = 30 * time.Second
	c.Server.WriteTimeout = 5 * time.Minute
	c.Server.ShutdownTimeout = 15 * time.Second
	c.Server.MaxUploadBytes = 32 << 20
	c.Server.AllowedOrigins = []string{"*"}

	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"

	c.Logging.Level = "info"
	c.Logging.Format = "json"
	c.Logging.Output = "stdout"
	c.Logging.Engines = map[string]string{
		"sarima":  "sarima.log",
		"prophet": "prophet.log",
		"gb":      "gb_model.log",
	}
	c.Logging.ErrorDigestInterval = 30 * time.Second

	c.Forecast.Workers = 1
	c.Forecast.LagCount = 3
	c.Forecast.Seasonal = SeasonalConfig{
		Period: 12, MaxP: 5, MaxQ: 5, MaxD: 2, MaxSP: 2, MaxSQ: 2, MaxSD: 1,
		MaxModels: 94, MaxIter: 2000, Criterion: "aic",
	}
	c.Forecast.Decomposition = DecompositionConfig{
		FourierOrder: 10, MaxChangepoints: 25, ChangepointRange: 0.8,
		ChangepointPriorScale: 0.05, SeasonalityPriorScale: 10,
	}
	c.Forecast.Boosting = BoostingConfig{
		Stages: 100, MaxDepth: 3, LearningRate: 0.1, MinSamplesSplit: 2, MinSamplesLeaf: 1,
	}

	c.Cache.Backend = "memory"
	c.Cache.TTL = 10 * time.Minute
	c.Cache.MaxEntries = 256
	c.Cache.Redis.Addr = "localhost:6379"

	c.RateLimit.Enabled = true
	c.RateLimit.Rate = 5
	c.RateLimit.Burst = 10

	c.ClickHouse.Host = "localhost"
	c.ClickHouse.Port = 9000
	c.ClickHouse.Database = "fincast"
	c.ClickHouse.Table = "forecast_results"
	c.ClickHouse.User = "default"
	c.ClickHouse.DialTimeout = 5 * time.Second
	c.ClickHouse.ReadTimeout = 30 * time.Second

	c.Kafka.Brokers = []string{"localhost:9092"}
	c.Kafka.RequestsTopic = "fincast.requests"
	c.Kafka.ResultsTopic = "fincast.results"
	c.Kafka.ErrorsTopic = "fincast.errors"
	c.Kafka.RequiredAcks = -1
	c.Kafka.Compression = "snappy"
	c.Kafka.Producer.MaxAttempts = 5
	c.Kafka.Producer.Linger = 10 * time.Millisecond
	c.Kafka.Producer.BatchBytes = 1 << 20
	c.Kafka.Producer.BatchSize = 100
	c.Kafka.Producer.WriteTimeout = 10 * time.Second
	c.Kafka.Producer.ReadTimeout = 10 * time.Second
	c.Kafka.Consumer.GroupID = "fincast-forecasters"
	c.Kafka.Consumer.Workers = 2
	c.Kafka.Consumer.BufferSize = 16
	c.Kafka.Consumer.RetryMax = 3
	c.Kafka.Consumer.BackoffMin = 200 * time.Millisecond
	c.Kafka.Consumer.BackoffMax = 5 * time.Second
	c.Kafka.Consumer.DLQTopic = "fincast.requests.dlq"
	c.Kafka.Consumer.MinBytes = 1
	c.Kafka.Consumer.MaxBytes = 10 << 20
	c.Kafka.Consumer.JobTimeout = 2 * time.Minute

	return c
}

// Load reads a YAML configuration file on top of Default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with FINCAST_* environment
// variables. Unset variables leave the file values untouched.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := ApplyEnv(c); err != nil {
		return nil, err
	}

	return c, nil
}

// ApplyEnv overlays environment variables onto c and re-validates it.
func ApplyEnv(c *Config) error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Forecast.Workers < 1 {
		return fmt.Errorf("forecast.workers must be >= 1, got %d", c.Forecast.Workers)
	}
	if c.Forecast.LagCount < 1 || c.Forecast.LagCount > 24 {
		return fmt.Errorf("forecast.lag_count must be in [1,24], got %d", c.Forecast.LagCount)
	}
	if c.Forecast.Seasonal.Period < 2 {
		return fmt.Errorf("forecast.seasonal.period must be >= 2, got %d", c.Forecast.Seasonal.Period)
	}
	switch strings.ToLower(c.Forecast.Seasonal.Criterion) {
	case "aic", "aicc", "bic":
	default:
		return fmt.Errorf("forecast.seasonal.criterion must be aic, aicc or bic, got '%s'", c.Forecast.Seasonal.Criterion)
	}
	if c.Forecast.Seasonal.MaxModels < 1 {
		return fmt.Errorf("forecast.seasonal.max_models must be >= 1")
	}
	if c.Forecast.Boosting.Stages < 1 || c.Forecast.Boosting.MaxDepth < 1 {
		return fmt.Errorf("forecast.boosting stages and max_depth must be >= 1")
	}
	if c.Forecast.Boosting.LearningRate <= 0 {
		return fmt.Errorf("forecast.boosting.learning_rate must be positive")
	}
	if c.Cache.Enabled && c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be 'memory' or 'redis', got '%s'", c.Cache.Backend)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.RequestsTopic == "" || c.Kafka.ResultsTopic == "" {
			return fmt.Errorf("kafka.requests_topic and kafka.results_topic are required")
		}
	}
	if c.ClickHouse.Enabled && (c.ClickHouse.Database == "" || c.ClickHouse.Table == "") {
		return fmt.Errorf("clickhouse.database and clickhouse.table are required when clickhouse is enabled")
	}
	return nil
}
