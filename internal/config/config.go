// Package config holds the runtime configuration of the gateway
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Debug         bool
	ListenAddr    string `validate:"required"`
	MetricsAPIKey string

	Gateway GatewayConfig
	Agent   AgentConfig

	// Optional backing services, empty disables them
	RedisAddr string
	DSN       string
}

type GatewayConfig struct {
	MaxConcurrency int64    `validate:"gte=1"`
	AllowedBuyers  []string `validate:"dive,required"`
	LogRequests    bool
	RequestLogPath string `validate:"required_if=LogRequests true"`
	AccountID      string `validate:"required"`
}

type AgentConfig struct {
	AgentID string `validate:"required"`
	URL     string `validate:"required,url"`
	Model   string `validate:"required"`
	APIKey  string
}

var validate = validator.New()

// Validate checks the struct tags and returns the first failing field
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
