// Package config loads tracka settings from a config file, TRACKA_*
// environment variables and command-line flags, in increasing order of
// precedence.
//
// Keys are dotted ("remote.url"). The matching environment variable
// upper-cases the key and replaces dots with underscores
// (TRACKA_REMOTE_URL).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Key names.
const (
	KeyRemoteURL          = "remote.url"
	KeyRemotePoll         = "remote.poll_interval"
	KeyAuthTokenFile      = "auth.token_file"
	KeyAuthSecret         = "auth.secret"
	KeyLogFile            = "log.file"
	KeyLogMaxSizeMB       = "log.max_size_mb"
	KeyLogMaxBackups      = "log.max_backups"
	KeyLogMaxAgeDays      = "log.max_age_days"
	KeyDashboardPort      = "dashboard.port"
	KeyDashboardOrigins   = "dashboard.allowed_origins"
	KeyBackendLoadTimeout = "backend.load_timeout"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TRACKA"

// Config is the resolved configuration.
type Config struct {
	Remote    RemoteConfig    `mapstructure:"remote"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Backend   BackendConfig   `mapstructure:"backend"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type RemoteConfig struct {
	// URL selects the document store: mem://, file:///dir,
	// sqlite:///path.db, libsql://host or postgres://...
	URL          string        `mapstructure:"url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type AuthConfig struct {
	TokenFile string `mapstructure:"token_file"`
	Secret    string `mapstructure:"secret"`
}

type LogConfig struct {
	// File enables rotating file output. Empty logs to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type DashboardConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type BackendConfig struct {
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
}

// Dir returns the per-user tracka directory ($XDG_CONFIG_HOME/tracka or the
// platform equivalent).
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tracka")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".tracka")
	}
	return ".tracka"
}

// Defaults returns the default value of every key.
func Defaults() map[string]any {
	dir := Dir()
	return map[string]any{
		KeyRemoteURL:          "sqlite://" + filepath.ToSlash(filepath.Join(dir, "tracka.db")),
		KeyRemotePoll:         250 * time.Millisecond,
		KeyAuthTokenFile:      filepath.Join(dir, "token"),
		KeyAuthSecret:         "",
		KeyLogFile:            "",
		KeyLogMaxSizeMB:       10,
		KeyLogMaxBackups:      3,
		KeyLogMaxAgeDays:      28,
		KeyDashboardPort:      7420,
		KeyDashboardOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		KeyBackendLoadTimeout: 30 * time.Second,
	}
}

// New returns a viper instance with defaults, search paths and environment
// binding set up. Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.SetConfigName("tracka")
	v.AddConfigPath(Dir())
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".tracka"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file and resolves every key. An explicit path must
// exist; otherwise a missing config file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("invalid config: %s is required", KeyRemoteURL)
	}
	u, err := url.Parse(c.Remote.URL)
	if err != nil {
		return fmt.Errorf("invalid config: %s: %w", KeyRemoteURL, err)
	}
	switch u.Scheme {
	case "mem", "file", "sqlite", "libsql", "postgres", "postgresql":
	default:
		return fmt.Errorf("invalid config: %s: unsupported scheme %q", KeyRemoteURL, u.Scheme)
	}
	if c.Remote.PollInterval <= 0 {
		return fmt.Errorf("invalid config: %s must be positive", KeyRemotePoll)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid config: %s out of range: %d", KeyDashboardPort, c.Dashboard.Port)
	}
	if c.Backend.LoadTimeout <= 0 {
		return fmt.Errorf("invalid config: %s must be positive", KeyBackendLoadTimeout)
	}
	return nil
}
