// Package middleware provides the Gin middleware stack shared by the dfm
// HTTP services: request ids, structured request logging, panic recovery,
// and authentication.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/auth"
	"github.com/nimbusworks/dfm/logger"
	"github.com/nimbusworks/dfm/server"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// RequestID assigns a correlation id to every request, honoring one
// provided by the caller.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger logs each request with method, path, status and duration.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logger.Fields(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			logger.FieldDuration, time.Since(start).Milliseconds(),
		)
		if id, ok := c.Get("request_id"); ok {
			fields[logger.FieldRequestID] = id
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("Request failed", fields)
		} else {
			log.Info("Request handled", fields)
		}
	}
}

// Recovery converts panics into 500 responses instead of killing the
// process.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Handler panic", logger.Fields("panic", r,
					"path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_kind": "INTERNAL",
					"message":    "internal error",
				})
			}
		}()
		c.Next()
	}
}

// Auth rejects unauthenticated requests using the configured
// authenticator. SkipPaths bypass the check (health, version).
func Auth(authenticator auth.Authenticator, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}
	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		if err := authenticator.Authenticate(c.Request); err != nil {
			server.RespondWithError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
