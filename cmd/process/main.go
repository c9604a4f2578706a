// The process service is the HTTP ingress of a dfm site: it accepts
// pipelines, verifies and optimizes them, enqueues the initial ready set,
// and serves response polling.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimbusworks/dfm/auth"
	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/component"
	"github.com/nimbusworks/dfm/config"
	"github.com/nimbusworks/dfm/execute"
	"github.com/nimbusworks/dfm/logger"
	"github.com/nimbusworks/dfm/observability"
	"github.com/nimbusworks/dfm/process"
	"github.com/nimbusworks/dfm/server"
	"github.com/nimbusworks/dfm/server/endpoint"
	"github.com/nimbusworks/dfm/server/middleware"
	"github.com/nimbusworks/dfm/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfg process.Config
	if err := config.LoadConfig("process", &cfg); err != nil {
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
	log.Info("Process service starting", logger.Fields("version", version.GetShortVersion()))

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

	authenticator, err := auth.New(cfg.Server.Auth)
	if err != nil {
		log.Error("Auth setup failed", logger.ErrorFields("auth", err))
		return 1
	}

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

	svc := process.NewService(brokerComp.Client(), site, cfg, log)

	srv := server.New(cfg.Server, log)
	engine := srv.GinEngine()
	engine.Use(
		middleware.RequestID(),
		middleware.RequestLogger(log),
		middleware.Recovery(log),
		middleware.Auth(authenticator, "/status", "/version"),
	)
	endpoint.RegisterVersion(engine, siteCfg.Site)
	endpoint.RegisterHealth(engine, registry)
	svc.RegisterRoutes(engine)

	if err := registry.Register(srv); err != nil {
		log.Error("Component registration failed", logger.ErrorFields("register", err))
		return 1
	}
	if err := registry.StartAll(ctx); err != nil {
		log.Error("Server start failed", logger.ErrorFields("start", err))
		return 1
	}

	<-ctx.Done()
	log.Info("Process service shutting down")
	return 0
}
