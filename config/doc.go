// Package config provides configuration loading and validation for the dfm
// services.
//
// Service configuration (broker endpoint, HTTP surface, logging) is loaded
// with Viper from config.yml plus .env files and environment variables. The
// site configuration — the provider table binding api_classes to adapters —
// is parsed strictly from YAML: unknown keys are rejected.
//
// # Usage
//
//	var cfg execute.Config
//	err := config.LoadConfig("execute", &cfg)
//
//	site, err := config.LoadSiteConfig("site.yml")
package config
