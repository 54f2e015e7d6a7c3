// Package config loads the platform's YAML configuration and layers CA_*
// environment overrides on top. Load always starts from built-in defaults,
// so a missing file or a sparse one still yields a runnable config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can spell values as Go duration
// strings ("30s", "5m") instead of integer nanoseconds. Code reads the
// embedded Duration field directly.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	// Integer scalars are nanoseconds. The check runs first because any
	// scalar, integers included, decodes cleanly into a string.
	var ns int64
	if err := node.Decode(&ns); err == nil {
		d.Duration = time.Duration(ns)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: bad duration: %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: bad duration %q: %w", node.Line, s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Config is the top-level application configuration shared by every service
// binary. Each service reads only the sections it needs.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener settings shared by all services.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds connection pool settings for PostgreSQL.
type PostgresConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	Database        string   `yaml:"database"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	SSLMode         string   `yaml:"sslMode"`
	MaxOpenConns    int      `yaml:"maxOpenConns"`
	MaxIdleConns    int      `yaml:"maxIdleConns"`
	ConnMaxLifetime Duration `yaml:"connMaxLifetime"`
}

// DSN renders the connection string lib/pq expects.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
}

// KafkaConfig holds broker addresses and the topics the platform publishes
// and consumes.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics names the platform's topics.
type KafkaTopics struct {
	DocumentCreated string `yaml:"documentCreated"`
	CorpusFlushed   string `yaml:"corpusFlushed"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection settings and the score cache TTL.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	PoolSize int      `yaml:"poolSize"`
	CacheTTL Duration `yaml:"cacheTTL"`
}

// AnalyzerConfig controls the analyzer's snapshot directory, flush cadence,
// and the tokenizer chain applied to incoming documents.
type AnalyzerConfig struct {
	DataDir        string   `yaml:"dataDir"`
	FlushInterval  Duration `yaml:"flushInterval"`
	Stemming       bool     `yaml:"stemming"`
	NGramSize      int      `yaml:"ngramSize"`
	MinTokenLength int      `yaml:"minTokenLength"`
	ExtraStopWords []string `yaml:"extraStopWords"`
}

// ScoringConfig controls score serving limits and the statistical models
// exposed by the scorer service.
type ScoringConfig struct {
	DefaultLimit   int               `yaml:"defaultLimit"`
	MaxLimit       int               `yaml:"maxLimit"`
	RequestTimeout Duration          `yaml:"requestTimeout"`
	Topics         TopicsConfig      `yaml:"topics"`
	Sentiment      SentimentConfig   `yaml:"sentiment"`
	Correlation    CorrelationConfig `yaml:"correlation"`
}

// TopicsConfig controls the LDA topic modeler.
type TopicsConfig struct {
	Count      int `yaml:"count"`
	Iterations int `yaml:"iterations"`
	TopTerms   int `yaml:"topTerms"`
}

// SentimentConfig controls the sentiment lexicon. An empty LexiconPath
// selects the built-in lexicon.
type SentimentConfig struct {
	LexiconPath string `yaml:"lexiconPath"`
}

// CorrelationConfig controls term co-occurrence analysis.
type CorrelationConfig struct {
	MinDocFreq int `yaml:"minDocFreq"`
	MaxPairs   int `yaml:"maxPairs"`
}

// AnalyticsConfig controls the analytics aggregation service.
type AnalyticsConfig struct {
	RPCPort          int      `yaml:"rpcPort"`
	BatchSize        int      `yaml:"batchSize"`
	BatchInterval    Duration `yaml:"batchInterval"`
	SnapshotInterval Duration `yaml:"snapshotInterval"`
}

// GatewayConfig holds the API gateway port and upstream service addresses.
type GatewayConfig struct {
	Port             int    `yaml:"port"`
	IngestionURL     string `yaml:"ingestionUrl"`
	ScorerURL        string `yaml:"scorerUrl"`
	AnalyticsRPCAddr string `yaml:"analyticsRpcAddr"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls in-process span tracing. Span trees are always
// logged for requests slower than SlowRequestThreshold; SampleRate is the
// fraction of remaining requests logged anyway.
type TracingConfig struct {
	Enabled              bool     `yaml:"enabled"`
	SampleRate           float64  `yaml:"sampleRate"`
	SlowRequestThreshold Duration `yaml:"slowRequestThreshold"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load builds the configuration from defaults, then the YAML file at path
// if one is given, then CA_* environment variables, in increasing order of
// precedence. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	// Unknown keys are almost always typos; fail instead of silently
	// running on defaults.
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides individual fields from CA_* environment variables.
// Only the fields that differ between deployments are exposed this way;
// everything else belongs in the config file.
func (c *Config) applyEnv() {
	envInt("CA_SERVER_PORT", &c.Server.Port)
	envString("CA_POSTGRES_HOST", &c.Postgres.Host)
	envInt("CA_POSTGRES_PORT", &c.Postgres.Port)
	envString("CA_POSTGRES_DATABASE", &c.Postgres.Database)
	envString("CA_POSTGRES_USER", &c.Postgres.User)
	envString("CA_POSTGRES_PASSWORD", &c.Postgres.Password)
	envString("CA_POSTGRES_SSLMODE", &c.Postgres.SSLMode)
	envString("CA_REDIS_ADDR", &c.Redis.Addr)
	envString("CA_REDIS_PASSWORD", &c.Redis.Password)
	envString("CA_ANALYZER_DATA_DIR", &c.Analyzer.DataDir)
	envInt("CA_ANALYTICS_RPC_PORT", &c.Analytics.RPCPort)
	envInt("CA_GATEWAY_PORT", &c.Gateway.Port)
	envString("CA_GATEWAY_INGESTION_URL", &c.Gateway.IngestionURL)
	envString("CA_GATEWAY_SCORER_URL", &c.Gateway.ScorerURL)
	envString("CA_GATEWAY_ANALYTICS_RPC_ADDR", &c.Gateway.AnalyticsRPCAddr)
	envString("CA_LOGGING_LEVEL", &c.Logging.Level)
	envString("CA_LOGGING_FORMAT", &c.Logging.Format)
	envInt("CA_METRICS_PORT", &c.Metrics.Port)
	if v := os.Getenv("CA_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate rejects configurations that would otherwise fail at some later,
// less obvious point at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Scoring.DefaultLimit < 1 {
		return fmt.Errorf("scoring.defaultLimit must be positive, got %d", c.Scoring.DefaultLimit)
	}
	if c.Scoring.MaxLimit < c.Scoring.DefaultLimit {
		return fmt.Errorf("scoring.maxLimit %d is below scoring.defaultLimit %d",
			c.Scoring.MaxLimit, c.Scoring.DefaultLimit)
	}
	if c.Analyzer.NGramSize < 1 {
		return fmt.Errorf("analyzer.ngramSize must be at least 1, got %d", c.Analyzer.NGramSize)
	}
	if c.Analytics.BatchSize < 1 {
		return fmt.Errorf("analytics.batchSize must be positive, got %d", c.Analytics.BatchSize)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sampleRate %v must be within [0, 1]", c.Tracing.SampleRate)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration{30 * time.Second},
			WriteTimeout:    Duration{30 * time.Second},
			ShutdownTimeout: Duration{15 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "corpusanalytics",
			User:            "corpusanalytics",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration{5 * time.Minute},
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "corpusanalytics-group",
			Topics: KafkaTopics{
				DocumentCreated: "document-created",
				CorpusFlushed:   "corpus.flushed",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: Duration{60 * time.Second},
		},
		Analyzer: AnalyzerConfig{
			DataDir:        "data/corpora",
			FlushInterval:  Duration{30 * time.Second},
			Stemming:       true,
			NGramSize:      1,
			MinTokenLength: 2,
		},
		Scoring: ScoringConfig{
			DefaultLimit:   20,
			MaxLimit:       500,
			RequestTimeout: Duration{10 * time.Second},
			Topics: TopicsConfig{
				Count:      4,
				Iterations: 100,
				TopTerms:   10,
			},
			Correlation: CorrelationConfig{
				MinDocFreq: 2,
				MaxPairs:   50,
			},
		},
		Analytics: AnalyticsConfig{
			RPCPort:          7600,
			BatchSize:        100,
			BatchInterval:    Duration{5 * time.Second},
			SnapshotInterval: Duration{60 * time.Second},
		},
		Gateway: GatewayConfig{
			Port:             8082,
			IngestionURL:     "http://localhost:8081",
			ScorerURL:        "http://localhost:8080",
			AnalyticsRPCAddr: "localhost:7600",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:              true,
			SampleRate:           0.1,
			SlowRequestThreshold: Duration{500 * time.Millisecond},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}
