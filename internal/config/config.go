// Package config loads coordinator settings from a 3-tier viper stack
// (project .coord/config.yaml, user config dir, home directory), the same
// precedence and env-override idiom as the teacher's internal/config, scoped
// to the settings a single coordinator process needs.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the package-level viper instance. Call once at
// startup, before any Get* call.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// 1. Walk up from CWD looking for .coord/config.yaml.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".coord", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/coord/config.yaml).
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "coord", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory (~/.coord/config.yaml).
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".coord", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables: COORD_DATA_DIR, COORD_SOCKET_PATH, etc.
	v.SetEnvPrefix("COORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data-dir", "")
	v.SetDefault("socket-path", "")
	v.SetDefault("num-workers", 1)
	v.SetDefault("compaction-window-ms", 1000)
	v.SetDefault("caching-enabled-by-default", false)
	v.SetDefault("logging-compaction-window-ms", 1000)
	v.SetDefault("timestamper-interval", "1s")
	v.SetDefault("lock-timeout", "30s")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-path", "")
	v.SetDefault("log-max-size-mb", 100)
	v.SetDefault("log-max-backups", 3)
	v.SetDefault("log-max-age-days", 28)
	v.SetDefault("daemon-max-conns", 100)
	v.SetDefault("request-timeout", "30s")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	} else {
		slog.Debug("no config.yaml found, using defaults and environment variables")
	}

	return nil
}

// ConfigSource records where a setting's effective value came from.
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// GetValueSource reports the source of key's value: env var takes priority
// over config file, which takes priority over the built-in default. Flag
// overrides are resolved by the caller, since viper doesn't see cobra flags.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}

	envKey := "COORD_" + strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(key, "-", "_"), ".", "_"))
	if os.Getenv(envKey) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// GetString retrieves a string setting.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean setting.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer setting.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration setting.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a setting in-process (used by cobra flag binding).
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns every configured key/value pair.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}
