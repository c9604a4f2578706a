// The execute service hosts the adapter plane: a worker pool pulling ready
// nodes from the broker and running them through the site's providers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/cache"
	"github.com/nimbusworks/dfm/component"
	"github.com/nimbusworks/dfm/config"
	"github.com/nimbusworks/dfm/execute"
	"github.com/nimbusworks/dfm/logger"
	"github.com/nimbusworks/dfm/observability"
	"github.com/nimbusworks/dfm/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfg execute.Config
	if err := config.LoadConfig("execute", &cfg); err != nil {
		logger.Error("Config load failed", logger.ErrorFields("load", err))
		return 1
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		logger.Error("Config invalid", logger.ErrorFields("validate", err))
		return 1
	}

	log := logger.New(&cfg.Logging, cfg.Name)
	logger.SetGlobalLogger(log)
	log.Info("Execute service starting", logger.Fields("version", version.GetShortVersion()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if endpointAddr := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpointAddr != "" {
		tracerCfg := observability.DefaultTracerConfig(cfg.Name)
		tracerCfg.Endpoint = endpointAddr
		if tp, err := observability.InitTracer(ctx, tracerCfg); err == nil {
			defer tp.Shutdown(context.Background())
		}
		meterCfg := observability.DefaultMeterConfig(cfg.Name)
		meterCfg.Endpoint = endpointAddr
		if mp, err := observability.InitMeter(ctx, meterCfg); err == nil {
			defer mp.Shutdown(context.Background())
		}
	}

	siteCfg, err := config.LoadSiteConfig(cfg.SiteConfigPath)
	if err != nil {
		log.Error("Site config load failed", logger.ErrorFields("site", err))
		return 1
	}
	site, err := execute.NewSite(siteCfg)
	if err != nil {
		log.Error("Site build failed", logger.ErrorFields("site", err))
		return 1
	}
	log.Info("Site configured", logger.Fields(
		logger.FieldSite, siteCfg.Site, "providers", len(siteCfg.Providers)))

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

	resultCache := cache.New(brokerComp.Client(), cfg.Cache, log)
	pool := execute.NewPool(brokerComp.Client(), resultCache, site, cfg, log)

	if err := registry.Register(execute.NewComponent(pool, cfg, log)); err != nil {
		log.Error("Component registration failed", logger.ErrorFields("register", err))
		return 1
	}
	if err := registry.StartAll(ctx); err != nil {
		log.Error("Executor start failed", logger.ErrorFields("start", err))
		return 1
	}

	<-ctx.Done()
	log.Info("Execute service shutting down")
	return 0
}
