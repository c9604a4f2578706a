// Package server provides the HTTP server shared by the dfm services,
// backed by Gin with request-id, logging, recovery, and auth middleware.
package server
