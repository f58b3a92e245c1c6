package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the top-level ticketd configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Report  ReportConfig  `json:"report" yaml:"report"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string   `json:"host" yaml:"host"`
	Port            int      `json:"port" yaml:"port"`
	CORSOrigins     []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	ShutdownTimeout int      `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"` // seconds
}

// StorageConfig selects the ticket store backend.
type StorageConfig struct {
	Backend string `json:"backend" yaml:"backend"`               // "memory" or "sqlite"
	Name    string `json:"name,omitempty" yaml:"name,omitempty"` // in-memory database name for sqlite
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`                       // debug, info, warn, error
	Format string `json:"format" yaml:"format"`                     // json or text
	Buffer int    `json:"buffer,omitempty" yaml:"buffer,omitempty"` // ring buffer entries for /debug/logs
}

// ReportConfig schedules the periodic store statistics log line.
type ReportConfig struct {
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"` // cron spec; empty disables
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Default returns the built-in configuration: 0.0.0.0:3000, in-memory
// store, info-level JSON logs.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 5,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			Name:    "tickets",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Buffer: 2000,
		},
	}
}

// Addr returns host:port for the listener.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Load reads a configuration file on top of Default. Files ending in .yaml
// or .yml are parsed as YAML; anything else as JSON, where comments and
// trailing commas are allowed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds a config from Default and TICKETD_ environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	cfg.Server.Host = getenv("TICKETD_HOST", cfg.Server.Host)
	port, err := getenvInt("TICKETD_PORT", cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Port = port
	if origins := os.Getenv("TICKETD_CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = parseList(origins)
	}

	cfg.Storage.Backend = getenv("TICKETD_STORAGE", cfg.Storage.Backend)
	cfg.Log.Level = getenv("TICKETD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("TICKETD_LOG_FORMAT", cfg.Log.Format)
	buffer, err := getenvInt("TICKETD_LOG_BUFFER", cfg.Log.Buffer)
	if err != nil {
		return nil, err
	}
	cfg.Log.Buffer = buffer
	cfg.Report.Schedule = getenv("TICKETD_REPORT_SCHEDULE", cfg.Report.Schedule)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q must be %q or %q", c.Storage.Backend, BackendMemory, BackendSQLite))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}
	if c.Log.Buffer < 1 {
		errs = append(errs, "log.buffer must be at least 1")
	}

	if c.Report.Schedule != "" {
		if _, err := cron.ParseStandard(c.Report.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("report.schedule %q: %v", c.Report.Schedule, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid integer %q", key, v)
	}
	return n, nil
}

func parseList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
