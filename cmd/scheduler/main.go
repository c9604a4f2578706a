// The scheduler service moves delayed nodes onto the execution queue when
// their activation time arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/component"
	"github.com/nimbusworks/dfm/config"
	"github.com/nimbusworks/dfm/logger"
	"github.com/nimbusworks/dfm/scheduler"
	"github.com/nimbusworks/dfm/version"
)

// schedulerServiceConfig is the full service configuration.
type schedulerServiceConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Broker    broker.Config    `yaml:"broker" mapstructure:"broker"`
	Scheduler scheduler.Config `yaml:"scheduler" mapstructure:"scheduler"`
}

func (c *schedulerServiceConfig) applyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Name == "" {
		c.Name = "scheduler"
	}
	c.Broker.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
}

func (c *schedulerServiceConfig) validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Broker.Validate(); err != nil {
		return fmt.Errorf("config.broker: %w", err)
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var cfg schedulerServiceConfig
	if err := config.LoadConfig("scheduler", &cfg); err != nil {
		logger.Error("Config load failed", logger.ErrorFields("load", err))
		return 1
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		logger.Error("Config invalid", logger.ErrorFields("validate", err))
		return 1
	}

	log := logger.New(&cfg.Logging, cfg.Name)
	logger.SetGlobalLogger(log)
	log.Info("Scheduler service starting", logger.Fields("version", version.GetShortVersion()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := component.NewRegistry()
	brokerComp := broker.NewComponent(cfg.Broker, log)
	if err := registry.Register(brokerComp); err != nil {
		log.Error("Component registration failed", logger.ErrorFields("register", err))
		return 1
	}
	if err := registry.StartAll(ctx); err != nil {
		log.Error("Broker start failed", logger.ErrorFields("start", err))
		return 1
	}
	defer registry.StopAll(context.Background())

	scheduler.New(brokerComp.Client(), cfg.Scheduler, log).Run(ctx)

	log.Info("Scheduler service shutting down")
	return 0
}
