package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/leadsplit/pkg/logging"
)

const (
	defaultJWTSecret = "change-me-in-production"

	BusDriverMemory = "memory"
	BusDriverNATS   = "nats"
)

// Config is the complete leadsplit configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Upload  UploadConfig  `yaml:"upload"`
	Bus     BusConfig     `yaml:"bus"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// StorageConfig configures the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig configures token issuance and login throttling.
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	LoginRatePerMinute int           `yaml:"login_rate_per_minute"`
	LoginBurst         int           `yaml:"login_burst"`
}

// UploadConfig bounds uploads and the distribution roster.
type UploadConfig struct {
	// MaxBytes is the largest accepted upload body.
	MaxBytes int64 `yaml:"max_bytes"`
	// MaxAgents caps how many active agents receive a share per upload.
	MaxAgents int `yaml:"max_agents"`
}

// BusConfig selects where distribution events are published.
type BusConfig struct {
	Driver  string        `yaml:"driver"`
	URL     string        `yaml:"url"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
	// Stream names a JetStream stream that retains distribution events.
	// Empty publishes on core NATS only.
	Stream string `yaml:"stream"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":5000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path: defaultDBPath(),
		},
		Auth: AuthConfig{
			JWTSecret:          defaultJWTSecret,
			TokenTTL:           24 * time.Hour,
			LoginRatePerMinute: 5,
			LoginBurst:         5,
		},
		Upload: UploadConfig{
			MaxBytes:  5 * 1024 * 1024,
			MaxAgents: 5,
		},
		Bus: BusConfig{
			Driver:  BusDriverMemory,
			URL:     "nats://localhost:4222",
			Name:    "leadsplit",
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatJSON),
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Join(".leadsplit", "leadsplit.db")
	}
	return filepath.Join(home, ".leadsplit", "leadsplit.db")
}

// Load loads configuration from default locations with proper precedence:
// defaults, ~/.leadsplit/config.yaml, ./.leadsplit/config.yaml, environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".leadsplit", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	projectConfigPath := filepath.Join(".", ".leadsplit", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Address) == "" {
		return fmt.Errorf("server.address is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.LoginRatePerMinute <= 0 || c.Auth.LoginBurst <= 0 {
		return fmt.Errorf("auth.login_rate_per_minute and auth.login_burst must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	if c.Upload.MaxAgents <= 0 {
		return fmt.Errorf("upload.max_agents must be at least 1")
	}
	switch c.Bus.Driver {
	case BusDriverMemory:
	case BusDriverNATS:
		if strings.TrimSpace(c.Bus.URL) == "" {
			return fmt.Errorf("bus.url is required for the nats driver")
		}
	default:
		return fmt.Errorf("bus.driver must be %q or %q, got %q", BusDriverMemory, BusDriverNATS, c.Bus.Driver)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	return nil
}

// ValidationWarnings reports settings that work but should not reach production.
func (c *Config) ValidationWarnings() []string {
	var warnings []string
	if c.Auth.JWTSecret == defaultJWTSecret {
		warnings = append(warnings, "auth.jwt_secret is the built-in default; set LEADSPLIT_JWT_SECRET")
	}
	for _, origin := range c.Server.AllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			warnings = append(warnings, "server.allowed_origins contains '*'; any site can call the API")
			break
		}
	}
	return warnings
}

// Logger builds the process logger described by the logging section.
func (c *Config) Logger(component string) *logging.Logger {
	level, _ := logging.ParseLevel(c.Logging.Level)
	format, _ := logging.ParseFormat(c.Logging.Format)
	return logging.NewLogger(component, logging.Options{Level: level, Format: format, Output: os.Stderr})
}
