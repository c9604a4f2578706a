package server

import (
	"fmt"

	"github.com/nimbusworks/dfm/auth"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// ReadTimeout/WriteTimeout/IdleTimeout are in seconds. The write
	// timeout must exceed the longest response-poll blocking window.
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
	IdleTimeout  int `mapstructure:"idle_timeout"`

	Auth auth.Config `mapstructure:"auth"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120
	}
	c.Auth.ApplyDefaults()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("server port must be in (0, 65535] (got: %d)", c.Port)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("server auth: %w", err)
	}
	return nil
}
