// Package config loads castbeam settings from defaults, an optional YAML
// file, a .env file and CASTBEAM_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CASTBEAM_"

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Cast      CastConfig      `yaml:"cast"`
	Manager   ManagerConfig   `yaml:"manager"`
	Cache     CacheConfig     `yaml:"cache"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

type DiscoveryConfig struct {
	MDNSBackend      string        `yaml:"mdns_backend"`
	MDNSService      string        `yaml:"mdns_service"`
	SSDPSearchTarget string        `yaml:"ssdp_search_target"`
	SSDPWaitSeconds  int           `yaml:"ssdp_wait_seconds"`
	Manufacturer     string        `yaml:"manufacturer"`
	RescanInterval   time.Duration `yaml:"rescan_interval"`
	BrowseTimeout    time.Duration `yaml:"browse_timeout"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	FetchRetries     int           `yaml:"fetch_retries"`
	FetchMaxBytes    int64         `yaml:"fetch_max_bytes"`
}

type CastConfig struct {
	Port              int           `yaml:"port"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	YouTubeRetries    int           `yaml:"youtube_retries"`
}

type ManagerConfig struct {
	DiscoveryTimeoutMS         int           `yaml:"discovery_timeout_ms"`
	FallbackDiscoveryTimeoutMS int           `yaml:"fallback_discovery_timeout_ms"`
	IdleCleanupAfter           time.Duration `yaml:"idle_cleanup_after"`
	CleanupSweepEvery          time.Duration `yaml:"cleanup_sweep_every"`
	// LeaveRunningOnExit keeps receiver apps playing after shutdown.
	LeaveRunningOnExit bool `yaml:"leave_running_on_exit"`
}

// CacheConfig points at the known-device database. An empty path disables it.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig enables event publishing when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         byte   `yaml:"qos"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Discovery: DiscoveryConfig{
			MDNSBackend:      "listener",
			MDNSService:      "_googlecast._tcp.local",
			SSDPSearchTarget: "urn:dial-multiscreen-org:service:dial:1",
			SSDPWaitSeconds:  2,
			Manufacturer:     "Google",
			RescanInterval:   time.Minute,
			BrowseTimeout:    3 * time.Second,
			FetchTimeout:     5 * time.Second,
			FetchRetries:     2,
			FetchMaxBytes:    1 << 20,
		},
		Cast: CastConfig{
			Port:              8009,
			DialTimeout:       5 * time.Second,
			HeartbeatInterval: 5 * time.Second,
			RequestTimeout:    10 * time.Second,
			YouTubeRetries:    2,
		},
		Manager: ManagerConfig{
			DiscoveryTimeoutMS:         2500,
			FallbackDiscoveryTimeoutMS: 12000,
			IdleCleanupAfter:           10 * time.Minute,
			CleanupSweepEvery:          5 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:    "castbeam",
			TopicPrefix: "castbeam",
			QoS:         1,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("expanding config path: %w", err)
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.Cache.Path != "" {
		expanded, err := homedir.Expand(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding cache path: %w", err)
		}
		cfg.Cache.Path = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Discovery
	if v := os.Getenv(envPrefix + "MDNS_BACKEND"); v != "" {
		cfg.Discovery.MDNSBackend = v
	}
	if v := os.Getenv(envPrefix + "MANUFACTURER"); v != "" {
		cfg.Discovery.Manufacturer = v
	}
	if err := envDuration(envPrefix+"RESCAN_INTERVAL", &cfg.Discovery.RescanInterval); err != nil {
		return err
	}

	// Cast
	if err := envInt(envPrefix+"CAST_PORT", &cfg.Cast.Port); err != nil {
		return err
	}
	if err := envDuration(envPrefix+"REQUEST_TIMEOUT", &cfg.Cast.RequestTimeout); err != nil {
		return err
	}

	// Manager
	if err := envInt(envPrefix+"DISCOVERY_TIMEOUT_MS", &cfg.Manager.DiscoveryTimeoutMS); err != nil {
		return err
	}
	if err := envDuration(envPrefix+"IDLE_CLEANUP_AFTER", &cfg.Manager.IdleCleanupAfter); err != nil {
		return err
	}

	// Cache
	if v, ok := os.LookupEnv(envPrefix + "CACHE_PATH"); ok {
		cfg.Cache.Path = v
	}

	// MQTT
	if v := os.Getenv(envPrefix + "MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv(envPrefix + "MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	return nil
}

func envInt(key string, dst *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Discovery.MDNSBackend {
	case "listener", "browse":
	default:
		errs = append(errs, fmt.Errorf("discovery.mdns_backend must be listener or browse, got %q", c.Discovery.MDNSBackend))
	}
	if c.Discovery.SSDPWaitSeconds < 1 {
		errs = append(errs, errors.New("discovery.ssdp_wait_seconds must be at least 1"))
	}
	if c.Discovery.RescanInterval < 0 {
		errs = append(errs, errors.New("discovery.rescan_interval must not be negative"))
	}
	if c.Discovery.FetchRetries < 0 {
		errs = append(errs, errors.New("discovery.fetch_retries must not be negative"))
	}
	if c.Cast.Port < 1 || c.Cast.Port > 65535 {
		errs = append(errs, fmt.Errorf("cast.port out of range: %d", c.Cast.Port))
	}
	if c.Cast.RequestTimeout <= 0 {
		errs = append(errs, errors.New("cast.request_timeout must be positive"))
	}
	if c.Manager.DiscoveryTimeoutMS < 100 {
		errs = append(errs, errors.New("manager.discovery_timeout_ms must be at least 100"))
	}
	if c.Manager.FallbackDiscoveryTimeoutMS < c.Manager.DiscoveryTimeoutMS {
		errs = append(errs, errors.New("manager.fallback_discovery_timeout_ms must not be below discovery_timeout_ms"))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.MQTT.Broker != "" && strings.TrimSpace(c.MQTT.TopicPrefix) == "" {
		errs = append(errs, errors.New("mqtt.topic_prefix is required when a broker is set"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLogLevel maps a level name to a slog level. An empty name is info.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", raw)
	}
}
