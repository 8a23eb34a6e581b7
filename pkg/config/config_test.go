package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 3, c.Forecast.LagCount)
	assert.Equal(t, 12, c.Forecast.Seasonal.Period)
	assert.Equal(t, 100, c.Forecast.Boosting.Stages)
	assert.Equal(t, "gb_model.log", c.Logging.Engines["gb"])
	assert.False(t, c.Kafka.Enabled)
	assert.False(t, c.ClickHouse.Enabled)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: test
server:
  port: 9090
forecast:
  workers: 4
  seasonal:
    max_models: 10
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 4, c.Forecast.Workers)
	assert.Equal(t, 10, c.Forecast.Seasonal.MaxModels)
	// untouched keys keep their defaults
	assert.Equal(t, 5, c.Forecast.Seasonal.MaxP)
	assert.Equal(t, 15*time.Second, c.Server.ShutdownTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad criterion", "forecast:\n  seasonal:\n    criterion: hqic\n"},
		{"zero workers", "forecast:\n  workers: 0\n"},
		{"lag count too large", "forecast:\n  lag_count: 40\n"},
		{"kafka without brokers", "kafka:\n  enabled: true\n  brokers: []\n"},
		{"unknown cache backend", "cache:\n  enabled: true\n  backend: memcached\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadWithEnv(t *testing.T) {
	path := writeConfig(t, "environment: test\n")

	t.Setenv("FINCAST_SERVER_PORT", "7070")
	t.Setenv("FINCAST_FORECAST_WORKERS", "3")
	t.Setenv("FINCAST_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("FINCAST_LOG_LEVEL", "debug")
	t.Setenv("FINCAST_FORECAST_SEASONAL_MAX_MODELS", "12")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, c.Server.Port)
	assert.Equal(t, 3, c.Forecast.Workers)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, 12, c.Forecast.Seasonal.MaxModels)
	assert.Equal(t, "test", c.Environment)
}
