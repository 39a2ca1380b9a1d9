package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and overlays the keys it sets onto cfg.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(expandHomeDir(path))
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	cfg.Storage.Path = expandHomeDir(cfg.Storage.Path)
	return nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_ADDR")); v != "" {
		cfg.Server.Address = v
	} else if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Server.Address = ":" + v
	}
	if v := os.Getenv("LEADSPLIT_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCommaList(v)
	}
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_DB_PATH")); v != "" {
		cfg.Storage.Path = expandHomeDir(v)
	}
	if v := os.Getenv("LEADSPLIT_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	} else if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_TOKEN_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LEADSPLIT_TOKEN_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("LEADSPLIT_MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.Upload.MaxBytes = n
	}
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_MAX_AGENTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEADSPLIT_MAX_AGENTS: %w", err)
		}
		cfg.Upload.MaxAgents = n
	}
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_BUS_DRIVER")); v != "" {
		cfg.Bus.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_NATS_URL")); v != "" {
		cfg.Bus.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_NATS_STREAM")); v != "" {
		cfg.Bus.Stream = v
	}
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LEADSPLIT_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
