// Package component defines the core interfaces for lifecycle-managed
// infrastructure in the dfm services.
//
// Components represent services that require initialization, startup,
// shutdown, and health monitoring: the broker connection, the cache, the
// HTTP server, and the executor worker pool. Each cmd/ main registers its
// components in dependency order and starts them through a Registry.
package component
