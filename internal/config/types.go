// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads ordertrack configuration from defaults, a YAML file
// and ORDERTRACK_* environment variables, and supports hot reload.
package config

import "time"

// AppConfig is the fully resolved configuration.
type AppConfig struct {
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Stream     StreamConfig     `yaml:"stream"`
	Notify     NotifyConfig     `yaml:"notify"`
	Directions DirectionsConfig `yaml:"directions"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Server     ServerConfig     `yaml:"server"`
	Watch      WatchConfig      `yaml:"watch"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// StoreConfig selects the last-known status store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory|file|sqlite|badger|redis|postgres
	// Path is the file, sqlite database or badger directory.
	Path string `yaml:"path"`
	// DSN is the postgres connection string.
	DSN       string      `yaml:"dsn"`
	Redis     RedisConfig `yaml:"redis"`
	KeyPrefix string      `yaml:"keyPrefix"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StreamConfig selects the change-stream provider.
type StreamConfig struct {
	Provider string      `yaml:"provider"` // memory|redis|amqp|ws
	Redis    RedisConfig `yaml:"redis"`
	AMQP     AMQPConfig  `yaml:"amqp"`
	WSURL    string      `yaml:"wsUrl"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// NotifyConfig lists the transition notification sinks.
type NotifyConfig struct {
	Sinks   []string      `yaml:"sinks"` // log|webhook|amqp
	Webhook WebhookConfig `yaml:"webhook"`
	AMQP    AMQPConfig    `yaml:"amqp"`
}

type WebhookConfig struct {
	URL              string        `yaml:"url"`
	Token            string        `yaml:"token"`
	Timeout          time.Duration `yaml:"timeout"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// DirectionsConfig configures the route lookup client.
type DirectionsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BaseURL          string        `yaml:"baseUrl"`
	APIKey           string        `yaml:"apiKey"`
	Timeout          time.Duration `yaml:"timeout"`
	RatePerSecond    float64       `yaml:"ratePerSecond"`
	Burst            int           `yaml:"burst"`
	CacheTTL         time.Duration `yaml:"cacheTTL"`
	CacheBackend     string        `yaml:"cacheBackend"` // memory|redis
	CacheRedis       RedisConfig   `yaml:"cacheRedis"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc|http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	RateLimit       int           `yaml:"rateLimit"` // requests per minute per client IP
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// WatchConfig names the subscriptions the daemon opens at startup.
type WatchConfig struct {
	Users  []string `yaml:"users"`
	Orders []string `yaml:"orders"`
}
