// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/ordertrack/internal/validate"
)

var (
	logLevels        = []string{"trace", "debug", "info", "warn", "error"}
	storeBackends    = []string{"memory", "file", "sqlite", "badger", "redis", "postgres"}
	streamProviders  = []string{"memory", "redis", "amqp", "ws"}
	notifySinks      = []string{"log", "webhook", "amqp"}
	cacheBackends    = []string{"memory", "redis"}
	traceExporters   = []string{"grpc", "http"}
	httpSchemes      = []string{"http", "https"}
	websocketSchemes = []string{"ws", "wss"}
	amqpSchemes      = []string{"amqp", "amqps"}
)

// Validate checks cross-field consistency and returns every failure at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("log.level", cfg.Log.Level, logLevels)

	v.OneOf("store.backend", cfg.Store.Backend, storeBackends)
	switch cfg.Store.Backend {
	case "file", "sqlite", "badger":
		v.NotEmpty("store.path", cfg.Store.Path)
	case "redis":
		v.HostPort("store.redis.addr", cfg.Store.Redis.Addr)
	case "postgres":
		v.NotEmpty("store.dsn", cfg.Store.DSN)
	}

	v.OneOf("stream.provider", cfg.Stream.Provider, streamProviders)
	switch cfg.Stream.Provider {
	case "redis":
		v.HostPort("stream.redis.addr", cfg.Stream.Redis.Addr)
	case "amqp":
		v.URL("stream.amqp.url", cfg.Stream.AMQP.URL, amqpSchemes)
		v.NotEmpty("stream.amqp.exchange", cfg.Stream.AMQP.Exchange)
	case "ws":
		v.URL("stream.wsUrl", cfg.Stream.WSURL, websocketSchemes)
	}

	for _, sink := range cfg.Notify.Sinks {
		v.OneOf("notify.sinks", sink, notifySinks)
		switch sink {
		case "webhook":
			v.URL("notify.webhook.url", cfg.Notify.Webhook.URL, httpSchemes)
			v.PositiveDuration("notify.webhook.timeout", cfg.Notify.Webhook.Timeout)
			v.Positive("notify.webhook.breakerThreshold", cfg.Notify.Webhook.BreakerThreshold)
		case "amqp":
			v.URL("notify.amqp.url", cfg.Notify.AMQP.URL, amqpSchemes)
			v.NotEmpty("notify.amqp.exchange", cfg.Notify.AMQP.Exchange)
		}
	}

	if cfg.Directions.Enabled {
		v.URL("directions.baseUrl", cfg.Directions.BaseURL, httpSchemes)
		v.NotEmpty("directions.apiKey", cfg.Directions.APIKey)
		v.PositiveDuration("directions.timeout", cfg.Directions.Timeout)
		v.FloatRange("directions.ratePerSecond", cfg.Directions.RatePerSecond, 0.01, 1000)
		v.Positive("directions.burst", cfg.Directions.Burst)
		v.OneOf("directions.cacheBackend", cfg.Directions.CacheBackend, cacheBackends)
		if cfg.Directions.CacheBackend == "redis" {
			v.HostPort("directions.cacheRedis.addr", cfg.Directions.CacheRedis.Addr)
		}
		v.Positive("directions.breakerThreshold", cfg.Directions.BreakerThreshold)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, traceExporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	v.HostPort("server.listenAddr", cfg.Server.ListenAddr)
	v.Range("server.rateLimit", cfg.Server.RateLimit, 0, 100000)
	v.PositiveDuration("server.shutdownTimeout", cfg.Server.ShutdownTimeout)

	for _, u := range cfg.Watch.Users {
		v.NotEmpty("watch.users", u)
	}
	for _, o := range cfg.Watch.Orders {
		v.NotEmpty("watch.orders", o)
	}

	return v.Err()
}
