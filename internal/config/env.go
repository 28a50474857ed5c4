// Package config defines environment configuration structs and loaders.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	GeminiEnvConfig
	ServerEnvConfig
	SessionEnvConfig
	ClientEnvConfig
}

func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GeminiEnvConfig configures access to the Gemini completion endpoint.
// GOOGLE_API_KEY is honored as a fallback for GEMINI_API_KEY.
type GeminiEnvConfig struct {
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GoogleAPIKey  string `env:"GOOGLE_API_KEY"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
}

// APIKey returns the effective key, preferring GEMINI_API_KEY.
func (c *GeminiEnvConfig) APIKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return c.GoogleAPIKey
}

// ServerEnvConfig configures the HTTP server.
type ServerEnvConfig struct {
	Address       string `env:"SERVER_ADDRESS" envDefault:"127.0.0.1"`
	Port          int    `env:"SERVER_PORT" envDefault:"8080"`
	BodySizeLimit int    `env:"SERVER_BODY_LIMIT" envDefault:"16777216"`
}

// SessionEnvConfig configures session log retention.
type SessionEnvConfig struct {
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"5m"`
}

// ClientEnvConfig configures outbound HTTP clients. The generous default
// timeout covers model inference latency.
type ClientEnvConfig struct {
	ClientTimeout time.Duration `env:"CLIENT_TIMEOUT" envDefault:"90s"`
}
