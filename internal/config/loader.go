// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
	ErrUnknownConfigField = errors.New("unknown config field")
	// ErrUnsupportedFormat is returned for config files that are not YAML.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath      string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty path loads defaults and env only.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) env(key string) string {
	full := EnvPrefix + key
	l.ConsumedEnvKeys[full] = struct{}{}
	return full
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info", Service: "ordertrack"},
		Store: StoreConfig{
			Backend:   "memory",
			Path:      "ordertrack-status.db",
			KeyPrefix: "ordertrack:status:",
		},
		Stream: StreamConfig{
			Provider: "memory",
			AMQP:     AMQPConfig{Exchange: "ordertrack.changes"},
		},
		Notify: NotifyConfig{
			Sinks: []string{"log"},
			Webhook: WebhookConfig{
				Timeout:          5 * time.Second,
				BreakerThreshold: 5,
				BreakerReset:     30 * time.Second,
			},
			AMQP: AMQPConfig{Exchange: "ordertrack.notifications"},
		},
		Directions: DirectionsConfig{
			Enabled:          false,
			BaseURL:          "https://maps.googleapis.com",
			Timeout:          5 * time.Second,
			RatePerSecond:    5,
			Burst:            5,
			CacheTTL:         10 * time.Minute,
			CacheBackend:     "memory",
			BreakerThreshold: 3,
			BreakerReset:     30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "development",
		},
		Server: ServerConfig{
			ListenAddr:      ":8088",
			RateLimit:       120,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load parses the file strictly, applies env overrides and validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes YAML over cfg. Unknown fields and trailing documents are
// rejected.
func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv overrides cfg with ORDERTRACK_* variables. Every helper takes the
// current value as its default so unset keys leave file values intact.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Log.Level = ParseString(l.env("LOG_LEVEL"), cfg.Log.Level)
	cfg.Log.Service = ParseString(l.env("LOG_SERVICE"), cfg.Log.Service)

	cfg.Store.Backend = ParseString(l.env("STORE_BACKEND"), cfg.Store.Backend)
	cfg.Store.Path = ParseString(l.env("STORE_PATH"), cfg.Store.Path)
	cfg.Store.DSN = ParseString(l.env("STORE_DSN"), cfg.Store.DSN)
	cfg.Store.KeyPrefix = ParseString(l.env("STORE_KEY_PREFIX"), cfg.Store.KeyPrefix)
	cfg.Store.Redis.Addr = ParseString(l.env("STORE_REDIS_ADDR"), cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = ParseString(l.env("STORE_REDIS_PASSWORD"), cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = ParseInt(l.env("STORE_REDIS_DB"), cfg.Store.Redis.DB)

	cfg.Stream.Provider = ParseString(l.env("STREAM_PROVIDER"), cfg.Stream.Provider)
	cfg.Stream.Redis.Addr = ParseString(l.env("STREAM_REDIS_ADDR"), cfg.Stream.Redis.Addr)
	cfg.Stream.Redis.Password = ParseString(l.env("STREAM_REDIS_PASSWORD"), cfg.Stream.Redis.Password)
	cfg.Stream.AMQP.URL = ParseString(l.env("STREAM_AMQP_URL"), cfg.Stream.AMQP.URL)
	cfg.Stream.AMQP.Exchange = ParseString(l.env("STREAM_AMQP_EXCHANGE"), cfg.Stream.AMQP.Exchange)
	cfg.Stream.WSURL = ParseString(l.env("STREAM_WS_URL"), cfg.Stream.WSURL)

	cfg.Notify.Sinks = ParseList(l.env("NOTIFY_SINKS"), cfg.Notify.Sinks)
	cfg.Notify.Webhook.URL = ParseString(l.env("NOTIFY_WEBHOOK_URL"), cfg.Notify.Webhook.URL)
	cfg.Notify.Webhook.Token = ParseString(l.env("NOTIFY_WEBHOOK_TOKEN"), cfg.Notify.Webhook.Token)
	cfg.Notify.Webhook.Timeout = ParseDuration(l.env("NOTIFY_WEBHOOK_TIMEOUT"), cfg.Notify.Webhook.Timeout)
	cfg.Notify.AMQP.URL = ParseString(l.env("NOTIFY_AMQP_URL"), cfg.Notify.AMQP.URL)
	cfg.Notify.AMQP.Exchange = ParseString(l.env("NOTIFY_AMQP_EXCHANGE"), cfg.Notify.AMQP.Exchange)

	cfg.Directions.Enabled = ParseBool(l.env("DIRECTIONS_ENABLED"), cfg.Directions.Enabled)
	cfg.Directions.BaseURL = ParseString(l.env("DIRECTIONS_BASE_URL"), cfg.Directions.BaseURL)
	cfg.Directions.APIKey = ParseString(l.env("DIRECTIONS_API_KEY"), cfg.Directions.APIKey)
	cfg.Directions.Timeout = ParseDuration(l.env("DIRECTIONS_TIMEOUT"), cfg.Directions.Timeout)
	cfg.Directions.RatePerSecond = ParseFloat(l.env("DIRECTIONS_RATE"), cfg.Directions.RatePerSecond)
	cfg.Directions.Burst = ParseInt(l.env("DIRECTIONS_BURST"), cfg.Directions.Burst)
	cfg.Directions.CacheTTL = ParseDuration(l.env("DIRECTIONS_CACHE_TTL"), cfg.Directions.CacheTTL)
	cfg.Directions.CacheBackend = ParseString(l.env("DIRECTIONS_CACHE_BACKEND"), cfg.Directions.CacheBackend)
	cfg.Directions.CacheRedis.Addr = ParseString(l.env("DIRECTIONS_CACHE_REDIS_ADDR"), cfg.Directions.CacheRedis.Addr)

	cfg.Telemetry.Enabled = ParseBool(l.env("TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(l.env("TELEMETRY_EXPORTER"), cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(l.env("TELEMETRY_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(l.env("TELEMETRY_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = ParseString(l.env("TELEMETRY_ENVIRONMENT"), cfg.Telemetry.Environment)

	cfg.Server.ListenAddr = ParseString(l.env("LISTEN_ADDR"), cfg.Server.ListenAddr)
	cfg.Server.RateLimit = ParseInt(l.env("RATE_LIMIT"), cfg.Server.RateLimit)
	cfg.Server.ShutdownTimeout = ParseDuration(l.env("SHUTDOWN_TIMEOUT"), cfg.Server.ShutdownTimeout)

	cfg.Watch.Users = ParseList(l.env("WATCH_USERS"), cfg.Watch.Users)
	cfg.Watch.Orders = ParseList(l.env("WATCH_ORDERS"), cfg.Watch.Orders)
}
