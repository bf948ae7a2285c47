// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "ordertrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, []string{"log"}, cfg.Notify.Sinks)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
log:
  level: debug
store:
  backend: sqlite
  path: /var/lib/ordertrack/status.db
stream:
  provider: redis
  redis:
    addr: localhost:6379
notify:
  sinks: [log, webhook]
  webhook:
    url: https://push.example.com/send
    timeout: 2s
directions:
  enabled: true
  apiKey: secret
  cacheTTL: 1m
watch:
  users: [u-1, u-2]
`)
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ordertrack", cfg.Log.Service, "untouched fields keep defaults")
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Stream.Redis.Addr)
	assert.Equal(t, []string{"log", "webhook"}, cfg.Notify.Sinks)
	assert.Equal(t, 2*time.Second, cfg.Notify.Webhook.Timeout)
	assert.Equal(t, 5, cfg.Notify.Webhook.BreakerThreshold)
	assert.Equal(t, time.Minute, cfg.Directions.CacheTTL)
	assert.Equal(t, []string{"u-1", "u-2"}, cfg.Watch.Users)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "log:\n  level: debug\nserver:\n  listenAddr: \":9000\"\n")
	t.Setenv("ORDERTRACK_LOG_LEVEL", "warn")
	t.Setenv("ORDERTRACK_WATCH_USERS", "a, b,,c")
	t.Setenv("ORDERTRACK_DIRECTIONS_RATE", "not-a-number")

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Watch.Users)
	assert.Equal(t, 5.0, cfg.Directions.RatePerSecond, "invalid env keeps prior value")
	assert.Contains(t, l.ConsumedEnvKeys, "ORDERTRACK_LOG_LEVEL")
}

func TestLoad_StrictUnknownField(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "log:\n  levle: debug\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_RejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "log:\n  level: debug\n---\nlog:\n  level: info\n")
	_, err := NewLoader(path).Load()
	assert.ErrorContains(t, err, "multiple documents")
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path).Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "store:\n  backend: etcd\n")
	_, err := NewLoader(path).Load()
	assert.ErrorContains(t, err, "store.backend")
}
