package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// SetDefaults configures the built-in defaults for every configuration
// option, including the scheduler tuning values from spec §4.5 so an
// agent with no config file at all still runs correctly.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "")
	v.SetDefault("server.credential_env_var", "TABSYNC_BEARER_TOKEN")
	v.SetDefault("server.timeout_seconds", 30)

	v.SetDefault("state.path", defaultStatePath())

	v.SetDefault("scheduler.active_interval_ms", 1000)
	v.SetDefault("scheduler.idle_interval_ms", 10000)
	v.SetDefault("scheduler.error_backoff_ms", 5000)
	v.SetDefault("scheduler.max_backoff_ms", 60000)
	v.SetDefault("scheduler.activity_threshold_ms", 30000)
	v.SetDefault("scheduler.queue_size_threshold", 50)
	v.SetDefault("scheduler.max_queue_size", 1000)
}

func defaultStatePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "tabsync-agent.db"
	}
	return filepath.Join(homeDir, ".tabsync-agent", "state.db")
}

// findProjectConfig walks up from the working directory looking for
// tabsync-agent.toml, mirroring the teacher's am.toml discovery.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, "tabsync-agent.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles layers config files in precedence order (lowest
// first): system, user, project. Environment variables (bound via
// AutomaticEnv in initViper) always win over any file.
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()
	userDir := filepath.Join(homeDir, ".tabsync-agent")
	os.MkdirAll(userDir, 0755)

	paths := []string{
		"/etc/tabsync-agent/config.toml",
		filepath.Join(userDir, "config.toml"),
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		tmp := viper.New()
		tmp.SetConfigFile(path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			continue
		}

		settings := tmp.AllSettings()
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v.Set(k, settings[k])
		}
	}
}
