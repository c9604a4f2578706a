// Package logger provides structured logging for the dfm services
// using zerolog.
//
// It supports multiple output formats (JSON, console), log level
// configuration, and component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewFromEnv("execute").WithComponent("worker")
//	log.Info("node completed", logger.Fields("node_id", id))
package logger
