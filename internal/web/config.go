package web

import (
	"github.com/h2a-linkage/internal/config"
)

// Config represents the web server configuration
type Config struct {
	Server ServerConfig `json:"server"`
	Auth   AuthConfig   `json:"auth"`
	Limits LimitConfig  `json:"limits"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port    int      `json:"port"`
	Host    string   `json:"host"`
	Origins []string `json:"origins"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"api_key"`
}

// LimitConfig bounds request sizes
type LimitConfig struct {
	MaxBodyBytes int64 `json:"max_body_bytes"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Limits: LimitConfig{
			MaxBodyBytes: 64 << 20,
		},
	}
}

// ConfigFrom derives the server settings from the pipeline config
func ConfigFrom(cfg *config.Config) *Config {
	out := DefaultConfig()
	out.Server.Host = cfg.Server.Host
	out.Server.Port = cfg.Server.Port
	out.Server.Origins = cfg.Server.Origins
	if cfg.Server.APIKey != "" {
		out.Auth = AuthConfig{Enabled: true, APIKey: cfg.Server.APIKey}
	}
	if cfg.Server.MaxBodyBytes > 0 {
		out.Limits.MaxBodyBytes = cfg.Server.MaxBodyBytes
	}
	return out
}
