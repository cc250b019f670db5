// Package config loads and hot-reloads the agent's operational
// configuration: where the server lives, which environment variable
// carries the bearer credential, where local state is persisted, and
// overrides for the adaptive scheduler's fixed defaults. Follows the
// teacher's am.Config shape (a viper-backed struct with mapstructure
// tags, merged from system/user/project files plus environment
// variables).
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/tabsync/errors"
	"github.com/teranos/tabsync/internal/util"
)

// Config is the agent's top-level configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	State     StateConfig     `mapstructure:"state"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig configures the remote sync endpoint.
type ServerConfig struct {
	// URL is the base URL the transport POSTs /sync onto, e.g.
	// "https://sync.example.com". Must not already carry a "/sync"
	// suffix — the transport appends it.
	URL string `mapstructure:"url"`

	// CredentialEnvVar names the environment variable holding the
	// bearer credential attached to every request. The core never
	// reads or stores the credential value itself outside this lookup.
	CredentialEnvVar string `mapstructure:"credential_env_var"`

	// TimeoutSeconds bounds a single POST /sync round trip.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StateConfig configures the persistent state store.
type StateConfig struct {
	// Path is the SQLite file backing the device_id/lamport_clock/
	// last_sync_clock keys.
	Path string `mapstructure:"path"`
}

// SchedulerConfig overrides the adaptive scheduler's fixed defaults
// (spec §4.5). Zero values fall back to scheduler.DefaultConfig.
type SchedulerConfig struct {
	ActiveIntervalMS    int64 `mapstructure:"active_interval_ms"`
	IdleIntervalMS      int64 `mapstructure:"idle_interval_ms"`
	ErrorBackoffMS      int64 `mapstructure:"error_backoff_ms"`
	MaxBackoffMS        int64 `mapstructure:"max_backoff_ms"`
	ActivityThresholdMS int64 `mapstructure:"activity_threshold_ms"`
	QueueSizeThreshold  int   `mapstructure:"queue_size_threshold"`
	MaxQueueSize        int   `mapstructure:"max_queue_size"`
}

var (
	globalConfig  *Config
	viperInstance *viper.Viper
)

// Load reads the agent configuration using viper, merging (lowest to
// highest precedence) built-in defaults, /etc/tabsync-agent/config.toml,
// ~/.tabsync-agent/config.toml, a project-local tabsync-agent.toml found
// by walking up from the working directory, and TABSYNC_-prefixed
// environment variables. Subsequent calls return the cached result;
// use Reset to force a reload (tests).
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// GetViper returns the process-wide viper instance, initializing it if
// necessary. Exposed for advanced callers.
func GetViper() *viper.Viper {
	return initViper()
}

// Reset clears the cached configuration and viper instance. Used by
// tests.
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// LoadFromFile loads configuration from a single explicit file path,
// bypassing the merge-and-environment-variable search. Used by the CLI's
// --config flag.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", path)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()
	v.SetEnvPrefix("TABSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// Validate rejects configurations that would silently misbehave rather
// than fail loudly at startup.
func Validate(cfg *Config) error {
	if util.HasPrefixOrSuffix(cfg.Server.URL, "/sync") {
		return errors.Newf("server.url %q must not already include a /sync suffix; the transport appends it", cfg.Server.URL)
	}
	return nil
}
