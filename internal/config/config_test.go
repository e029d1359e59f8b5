package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "listener", cfg.Discovery.MDNSBackend)
	assert.Equal(t, 8009, cfg.Cast.Port)
	assert.Equal(t, 2500, cfg.Manager.DiscoveryTimeoutMS)
	assert.Equal(t, 12000, cfg.Manager.FallbackDiscoveryTimeoutMS)
	assert.Empty(t, cfg.Cache.Path)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "castbeam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
discovery:
  mdns_backend: browse
  rescan_interval: 30s
cast:
  request_timeout: 3s
manager:
  idle_cleanup_after: 2m
mqtt:
  broker: tcp://broker.lan:1883
  topic_prefix: home/cast
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "browse", cfg.Discovery.MDNSBackend)
	assert.Equal(t, 30*time.Second, cfg.Discovery.RescanInterval)
	assert.Equal(t, 3*time.Second, cfg.Cast.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Manager.IdleCleanupAfter)
	assert.Equal(t, "home/cast", cfg.MQTT.TopicPrefix)
	// Untouched keys keep their defaults.
	assert.Equal(t, 8009, cfg.Cast.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "castbeam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cast:\n  port: 8010\n"), 0o600))

	t.Setenv("CASTBEAM_CAST_PORT", "8011")
	t.Setenv("CASTBEAM_MQTT_BROKER", "tcp://10.0.0.2:1883")
	t.Setenv("CASTBEAM_CACHE_PATH", filepath.Join(dir, "devices.db"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8011, cfg.Cast.Port)
	assert.Equal(t, "tcp://10.0.0.2:1883", cfg.MQTT.Broker)
	assert.Equal(t, filepath.Join(dir, "devices.db"), cfg.Cache.Path)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CASTBEAM_LOG_LEVEL=warn\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CASTBEAM_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadRejectsBadEnvValue(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CASTBEAM_REQUEST_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CASTBEAM_REQUEST_TIMEOUT")
}

func TestLoadMissingFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "backend", mutate: func(c *Config) { c.Discovery.MDNSBackend = "avahi" }, want: "mdns_backend"},
		{name: "port", mutate: func(c *Config) { c.Cast.Port = 0 }, want: "cast.port"},
		{name: "fallback below primary", mutate: func(c *Config) { c.Manager.FallbackDiscoveryTimeoutMS = 200 }, want: "fallback_discovery_timeout_ms"},
		{name: "qos", mutate: func(c *Config) { c.MQTT.QoS = 3 }, want: "mqtt.qos"},
		{name: "prefix", mutate: func(c *Config) { c.MQTT.Broker = "tcp://b:1883"; c.MQTT.TopicPrefix = "" }, want: "topic_prefix"},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }, want: "log_level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
	require.NoError(t, Default().Validate())
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel(" WARNING ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}
