package config

import (
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig      `yaml:"log"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	History         HistoryConfig  `yaml:"history"`
	Binding         BindingConfig  `yaml:"binding"`
	Backend         BackendConfig  `yaml:"backend"`
	Server          ServerConfig   `yaml:"server"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	System          SystemConfig   `yaml:"system"`
	Script          string         `yaml:"script"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"` // Structured JSON output instead of the console writer
}

// DatabaseConfig contains database settings. An empty path disables the
// write ledger.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains write ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// HistoryConfig contains history query settings
type HistoryConfig struct {
	Instance     string   `yaml:"instance"`
	Step         Duration `yaml:"step"`
	Aggregate    string   `yaml:"aggregate"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // History queries per second across all bindings, 0 = unlimited
	Burst        int      `yaml:"burst"`
}

// BindingConfig contains defaults for widget bindings
type BindingConfig struct {
	Debounce       Duration `yaml:"debounce"`
	UpdateInterval Duration `yaml:"update_interval"` // Chart refresh period when a widget sets none
	TimeInterval   int      `yaml:"time_interval"`   // Chart window in hours when a widget sets none
	QueueSize      int      `yaml:"queue_size"`
}

// BackendConfig contains in-memory object store settings
type BackendConfig struct {
	Fixtures         string   `yaml:"fixtures"`
	Retention        Duration `yaml:"retention"`
	SimulateInterval Duration `yaml:"simulate_interval"` // 0 = no sensor simulation
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // Websocket origin patterns, empty = same origin
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 1, keeps changes ordered)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 1024)
}

// SystemConfig contains installation-wide display settings
type SystemConfig struct {
	FloatComma bool   `yaml:"float_comma"`
	Language   string `yaml:"language"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration data and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Script == "" {
		cfg.Script = "dashboard.lua"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// History defaults
	if cfg.History.Instance == "" {
		cfg.History.Instance = "history.0"
	}
	if cfg.History.Step == 0 {
		cfg.History.Step = Duration(30 * time.Minute)
	}
	if cfg.History.Aggregate == "" {
		cfg.History.Aggregate = "minmax"
	}
	if cfg.History.RateLimitRPS > 0 && cfg.History.Burst == 0 {
		cfg.History.Burst = 1
	}

	// Binding defaults
	if cfg.Binding.Debounce == 0 {
		cfg.Binding.Debounce = Duration(50 * time.Millisecond)
	}
	if cfg.Binding.UpdateInterval == 0 {
		cfg.Binding.UpdateInterval = Duration(60 * time.Second)
	}
	if cfg.Binding.TimeInterval == 0 {
		cfg.Binding.TimeInterval = 12
	}
	if cfg.Binding.QueueSize == 0 {
		cfg.Binding.QueueSize = 256
	}

	// Backend defaults
	if cfg.Backend.Retention == 0 {
		cfg.Backend.Retention = Duration(7 * 24 * time.Hour)
	}

	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	// System defaults
	if cfg.System.Language == "" {
		cfg.System.Language = "en"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 1024
	}
	return c.QueueSize
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
