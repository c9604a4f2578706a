package process

import (
	"fmt"
	"time"

	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/config"
	"github.com/nimbusworks/dfm/server"
)

// Config is the process service configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Broker broker.Config `yaml:"broker" mapstructure:"broker"`
	Server server.Config `yaml:"server" mapstructure:"server"`

	// SiteConfigPath locates the site YAML; process verifies submissions
	// against the same provider table the executor dispatches on.
	SiteConfigPath string `yaml:"site_config" mapstructure:"site_config"`

	// MaxPollTimeout caps the blocking window of a response poll.
	MaxPollTimeout time.Duration `yaml:"max_poll_timeout" mapstructure:"max_poll_timeout"`

	// MaxBatch caps how many responses one poll may drain.
	MaxBatch int `yaml:"max_batch" mapstructure:"max_batch"`
}

// ApplyDefaults applies default values.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Name == "" {
		c.Name = "process"
	}
	c.Broker.ApplyDefaults()
	c.Server.ApplyDefaults()
	if c.MaxPollTimeout <= 0 {
		c.MaxPollTimeout = 3 * time.Second
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 64
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Broker.Validate(); err != nil {
		return fmt.Errorf("config.broker: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	if c.SiteConfigPath == "" {
		return fmt.Errorf("config.site_config is required")
	}
	return nil
}
