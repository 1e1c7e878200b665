package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7*24*time.Hour, cfg.Redis.ResultTTL)
	assert.Equal(t, 4, cfg.Analysis.Workers)
	assert.Equal(t, 30*time.Minute, cfg.Analysis.MaxGap)
	assert.Equal(t, uint64(3), cfg.Guard.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ANALYSIS_FETCH_TIMEOUT", "45s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 45*time.Second, cfg.Analysis.FetchTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unparsable port", "DB_PORT", "many"},
		{"port out of range", "DB_PORT", "70000"},
		{"zero workers", "ANALYSIS_WORKERS", "0"},
		{"bad log level", "LOG_LEVEL", "chatty"},
		{"bad sslmode", "DB_SSLMODE", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 1, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=d sslmode=disable", d.ConnectionString())
}
