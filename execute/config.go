package execute

import (
	"fmt"
	"time"

	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/cache"
	"github.com/nimbusworks/dfm/config"
)

// Config is the execute service configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Broker broker.Config `yaml:"broker" mapstructure:"broker"`
	Cache  cache.Config  `yaml:"cache" mapstructure:"cache"`

	// SiteConfigPath locates the site YAML with the provider table.
	SiteConfigPath string `yaml:"site_config" mapstructure:"site_config"`

	// Workers is the size of the worker pool.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// PopTimeout bounds each blocking pop on the work queue so workers
	// observe shutdown.
	PopTimeout time.Duration `yaml:"pop_timeout" mapstructure:"pop_timeout"`

	// NodeTimeout is the per-node soft timeout.
	NodeTimeout time.Duration `yaml:"node_timeout" mapstructure:"node_timeout"`

	// RequestTimeout is the per-request hard timeout.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	// RetryAttempts bounds re-runs of an adapter on retryable errors.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ApplyDefaults applies default values.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Name == "" {
		c.Name = "execute"
	}
	c.Broker.ApplyDefaults()
	c.Cache.ApplyDefaults()
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = 2 * time.Second
	}
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = 10 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = time.Hour
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
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
	if c.SiteConfigPath == "" {
		return fmt.Errorf("config.site_config is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config.workers must be > 0")
	}
	return nil
}
