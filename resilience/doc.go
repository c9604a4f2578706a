// Package resilience provides the retry and circuit-breaker machinery used
// around broker calls and upstream adapter I/O.
package resilience
