// Package config loads and validates the service configuration from a
// YAML file, with environment variable overrides for deployment settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Alex-Pennington/splitterstats/errors"
)

// Config represents the complete application configuration
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	NATS     NATSConfig     `yaml:"nats"`
	HTTP     HTTPConfig     `yaml:"http"`
	Stats    StatsConfig    `yaml:"stats"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// ServiceConfig defines service identity
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"` // "prod", "dev", "test"
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MQTTConfig defines the MQTT broker connection and topic namespace
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BrokerURL      string        `yaml:"broker_url"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	BaseTopic      string        `yaml:"base_topic"`
	Topics         []string      `yaml:"topics"` // subscription filters; empty derives from base_topic
	QoS            byte          `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxReconnect   time.Duration `yaml:"max_reconnect_wait"`
}

// NATSConfig defines the optional NATS ingest bridge
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URLs          []string      `yaml:"urls"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// HTTPConfig defines the REST and WebSocket gateway
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst       int           `yaml:"rate_burst"`
	EnableWebSocket bool          `yaml:"enable_websocket"`
}

// StatsConfig tunes the production statistics engine
type StatsConfig struct {
	SplitsPerBasket     int           `yaml:"splits_per_basket"`
	ExchangeDebounce    time.Duration `yaml:"exchange_debounce"`
	PressureHistory     int           `yaml:"pressure_history"`
	FuelHistory         int           `yaml:"fuel_history"`
	TemperatureHistory  int           `yaml:"temperature_history"`
}

// SnapshotConfig controls statistics persistence
type SnapshotConfig struct {
	Path         string        `yaml:"path"`
	SaveInterval time.Duration `yaml:"save_interval"` // periodic autosave, 0 disables
}

// Default returns a configuration with production defaults applied.
// The defaults mirror the controller deployment: local MQTT broker,
// 60 splits per basket, snapshot beside the binary.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "splitterd",
			Environment: "prod",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		MQTT: MQTTConfig{
			Enabled:        true,
			BrokerURL:      "tcp://localhost:1883",
			ClientID:       "splitterd",
			BaseTopic:      "r4/splitter",
			QoS:            1,
			KeepAlive:      30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			MaxReconnect:   2 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URLs:          []string{"nats://localhost:4222"},
			SubjectPrefix: "splitter",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            ":5000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RateLimit:       50,
			RateBurst:       100,
			EnableWebSocket: true,
		},
		Stats: StatsConfig{
			SplitsPerBasket:    60,
			ExchangeDebounce:   2 * time.Second,
			PressureHistory:    1000,
			FuelHistory:        100,
			TemperatureHistory: 50,
		},
		Snapshot: SnapshotConfig{
			Path:         "production_stats.json",
			SaveInterval: 60 * time.Second,
		},
	}
}

// Load reads the configuration file at path, merges it over the defaults,
// applies environment overrides, and validates the result. An empty path
// yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides deployment settings from SPLITTERSTATS_* variables.
// Only settings that vary per deployment are overridable; engine tuning
// stays in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SPLITTERSTATS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SPLITTERSTATS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SPLITTERSTATS_MQTT_BROKER_URL"); v != "" {
		c.MQTT.BrokerURL = v
	}
	if v := os.Getenv("SPLITTERSTATS_MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("SPLITTERSTATS_MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("SPLITTERSTATS_MQTT_BASE_TOPIC"); v != "" {
		c.MQTT.BaseTopic = v
	}
	if v := os.Getenv("SPLITTERSTATS_NATS_URLS"); v != "" {
		c.NATS.URLs = strings.Split(v, ",")
		c.NATS.Enabled = true
	}
	if v := os.Getenv("SPLITTERSTATS_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("SPLITTERSTATS_SNAPSHOT_PATH"); v != "" {
		c.Snapshot.Path = v
	}
	if v := os.Getenv("SPLITTERSTATS_SNAPSHOT_SAVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Snapshot.SaveInterval = d
		}
	}
	if v := os.Getenv("SPLITTERSTATS_SPLITS_PER_BASKET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Stats.SplitsPerBasket = n
		}
	}
}

// SubscribeTopics returns the MQTT subscription filters. The defaults
// cover the controller namespaces: sequence/sensor topics under the base
// topic, operator signals under controller/, fuel under monitor/.
func (m MQTTConfig) SubscribeTopics() []string {
	if len(m.Topics) > 0 {
		return m.Topics
	}
	return []string{
		m.BaseTopic + "/#",
		"controller/#",
		"monitor/#",
	}
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	var problems []string

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q (want debug, info, warn or error)", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q (want text or json)", c.Logging.Format))
	}

	if !c.MQTT.Enabled && !c.NATS.Enabled {
		problems = append(problems, "no ingest transport enabled (mqtt.enabled and nats.enabled both false)")
	}
	if c.MQTT.Enabled {
		if c.MQTT.BrokerURL == "" {
			problems = append(problems, "mqtt.broker_url is empty")
		}
		if c.MQTT.BaseTopic == "" {
			problems = append(problems, "mqtt.base_topic is empty")
		}
		if c.MQTT.QoS > 2 {
			problems = append(problems, fmt.Sprintf("mqtt.qos %d (want 0, 1 or 2)", c.MQTT.QoS))
		}
	}
	if c.NATS.Enabled && len(c.NATS.URLs) == 0 {
		problems = append(problems, "nats.urls is empty")
	}

	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is empty")
	}
	if c.Stats.SplitsPerBasket <= 0 {
		problems = append(problems, fmt.Sprintf("stats.splits_per_basket %d (want > 0)", c.Stats.SplitsPerBasket))
	}
	if c.Stats.ExchangeDebounce < 0 {
		problems = append(problems, "stats.exchange_debounce is negative")
	}
	if c.Snapshot.Path == "" {
		problems = append(problems, "snapshot.path is empty")
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%s", strings.Join(problems, "; ")),
			"config", "Validate", "invalid configuration")
	}
	return nil
}
