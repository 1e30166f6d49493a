package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alex-Pennington/splitterstats/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60, cfg.Stats.SplitsPerBasket)
	assert.Equal(t, 2*time.Second, cfg.Stats.ExchangeDebounce)
	assert.Equal(t, "r4/splitter", cfg.MQTT.BaseTopic)
	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, "production_stats.json", cfg.Snapshot.Path)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().MQTT.BrokerURL, cfg.MQTT.BrokerURL)
}

func TestLoad_File(t *testing.T) {
	yaml := `
service:
  name: splitterd-test
logging:
  level: debug
  format: json
mqtt:
  enabled: true
  broker_url: tcp://broker.example:1883
  base_topic: yard/splitter
stats:
  splits_per_basket: 40
  exchange_debounce: 1s
snapshot:
  path: /tmp/stats.json
  save_interval: 30s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "splitterd-test", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "yard/splitter", cfg.MQTT.BaseTopic)
	assert.Equal(t, 40, cfg.Stats.SplitsPerBasket)
	assert.Equal(t, time.Second, cfg.Stats.ExchangeDebounce)
	assert.Equal(t, "/tmp/stats.json", cfg.Snapshot.Path)
	assert.Equal(t, 30*time.Second, cfg.Snapshot.SaveInterval)

	// Unspecified sections keep defaults
	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, 1000, cfg.Stats.PressureHistory)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPLITTERSTATS_MQTT_BROKER_URL", "tcp://override:1883")
	t.Setenv("SPLITTERSTATS_HTTP_ADDR", ":8080")
	t.Setenv("SPLITTERSTATS_LOG_LEVEL", "warn")
	t.Setenv("SPLITTERSTATS_NATS_URLS", "nats://a:4222,nats://b:4222")
	t.Setenv("SPLITTERSTATS_SPLITS_PER_BASKET", "25")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tcp://override:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 25, cfg.Stats.SplitsPerBasket)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"no transport", func(c *Config) { c.MQTT.Enabled = false; c.NATS.Enabled = false }},
		{"empty broker url", func(c *Config) { c.MQTT.BrokerURL = "" }},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"nats without urls", func(c *Config) { c.NATS.Enabled = true; c.NATS.URLs = nil }},
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"zero splits per basket", func(c *Config) { c.Stats.SplitsPerBasket = 0 }},
		{"negative debounce", func(c *Config) { c.Stats.ExchangeDebounce = -time.Second }},
		{"empty snapshot path", func(c *Config) { c.Snapshot.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}
