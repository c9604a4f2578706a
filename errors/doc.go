// Package errors provides unified error handling for the dfm services.
// It implements structured error types with machine-readable kinds, HTTP
// status mapping, and retryable detection.
package errors
