// Package config loads service settings from the environment. A .env file
// in the working directory is read first when present.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Analysis AnalysisConfig
	Guard    GuardConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost" validate:"required"`
	Port     int    `envconfig:"DB_PORT" default:"5432" validate:"min=1,max=65535"`
	User     string `envconfig:"DB_USER" default:"tsa_user" validate:"required"`
	Password string `envconfig:"DB_PASSWORD" default:"tsa_pass"`
	DBName   string `envconfig:"DB_NAME" default:"tsa_db" validate:"required"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379" validate:"required,hostname_port"`
	Password  string        `envconfig:"REDIS_PASSWORD"`
	DB        int           `envconfig:"REDIS_DB" default:"0" validate:"min=0"`
	ResultTTL time.Duration `envconfig:"REDIS_RESULT_TTL" default:"168h" validate:"min=0"`
}

type KafkaConfig struct {
	Brokers       []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092" validate:"required,min=1,dive,hostname_port"`
	TopicRequests string   `envconfig:"KAFKA_TOPIC_REQUESTS" default:"tsa.requests" validate:"required"`
	TopicResults  string   `envconfig:"KAFKA_TOPIC_RESULTS" default:"tsa.results" validate:"required"`
	GroupID       string   `envconfig:"KAFKA_GROUP_ID" default:"tsa-analyzer" validate:"required"`
	NumPartitions int      `envconfig:"KAFKA_NUM_PARTITIONS" default:"10" validate:"min=1"`
}

type AnalysisConfig struct {
	Workers      int           `envconfig:"ANALYSIS_WORKERS" default:"4" validate:"min=1"`
	FetchTimeout time.Duration `envconfig:"ANALYSIS_FETCH_TIMEOUT" default:"2m" validate:"min=0"`
	CacheSize    int           `envconfig:"ANALYSIS_CACHE_SIZE" default:"256" validate:"min=1"`
	MaxGap       time.Duration `envconfig:"ANALYSIS_MAX_GAP" default:"30m" validate:"min=0"`
}

// GuardConfig tunes retries and the circuit breaker around the observation store
type GuardConfig struct {
	AttemptTimeout   time.Duration `envconfig:"STORE_ATTEMPT_TIMEOUT" default:"30s" validate:"min=0"`
	MaxRetries       uint64        `envconfig:"STORE_MAX_RETRIES" default:"3"`
	InitialInterval  time.Duration `envconfig:"STORE_RETRY_INITIAL" default:"200ms" validate:"min=0"`
	MaxInterval      time.Duration `envconfig:"STORE_RETRY_MAX" default:"5s" validate:"min=0"`
	FailureThreshold uint32        `envconfig:"STORE_BREAKER_FAILURES" default:"5" validate:"min=1"`
	OpenTimeout      time.Duration `envconfig:"STORE_BREAKER_OPEN" default:"30s" validate:"min=0"`
}

type MetricsConfig struct {
	Addr string `envconfig:"METRICS_ADDR" default:":9090" validate:"required"`
}

type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// Load reads the .env file if it exists, fills Config from the environment
// and validates it
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv fills Config from the process environment only
func FromEnv() (*Config, error) {
	config := &Config{}
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
