// ABOUTME: Configuration loading and parsing for studio-bridge
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// StudioPluginPort is the well-known coordination port the Studio plugin
// connects to. The port is a contract with the plugin; only tests override
// it.
const StudioPluginPort = 44755

// Config represents the complete studio-bridge configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Poll    PollConfig    `yaml:"poll"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds coordination listener configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address for the coordination port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PollConfig holds long-poll timing configuration.
type PollConfig struct {
	Timeout  time.Duration `yaml:"-"`
	StaleGap time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw  string `yaml:"timeout"`
	StaleGapRaw string `yaml:"stale_gap"`
}

// ProxyConfig holds dud-mode relay configuration.
type ProxyConfig struct {
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File redirects logs to a path instead of stderr. Stdout is never an
	// option: it carries the MCP stream.
	File string `yaml:"file"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: StudioPluginPort,
		},
		Poll: PollConfig{
			Timeout:  15 * time.Second,
			StaleGap: 5 * time.Second,
		},
		Proxy: ProxyConfig{
			Timeout: 120 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded and
// duration strings are parsed into time.Duration values. A missing file is
// not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are usable. Returns an
// error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Poll.Timeout <= 0 {
		return fmt.Errorf("poll.timeout must be positive")
	}
	if c.Poll.StaleGap <= 0 {
		return fmt.Errorf("poll.stale_gap must be positive")
	}
	if c.Proxy.Timeout <= 0 {
		return fmt.Errorf("proxy.timeout must be positive")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Poll.TimeoutRaw != "" {
		cfg.Poll.Timeout, err = time.ParseDuration(cfg.Poll.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing poll.timeout %q: %w", cfg.Poll.TimeoutRaw, err)
		}
	}

	if cfg.Poll.StaleGapRaw != "" {
		cfg.Poll.StaleGap, err = time.ParseDuration(cfg.Poll.StaleGapRaw)
		if err != nil {
			return fmt.Errorf("parsing poll.stale_gap %q: %w", cfg.Poll.StaleGapRaw, err)
		}
	}

	if cfg.Proxy.TimeoutRaw != "" {
		cfg.Proxy.Timeout, err = time.ParseDuration(cfg.Proxy.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing proxy.timeout %q: %w", cfg.Proxy.TimeoutRaw, err)
		}
	}

	return nil
}
