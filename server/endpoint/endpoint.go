// Package endpoint provides the operational endpoints every dfm service
// exposes: health and version.
package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimbusworks/dfm/component"
	"github.com/nimbusworks/dfm/version"
)

// RegisterHealth mounts GET /status reporting component health.
func RegisterHealth(engine *gin.Engine, registry *component.Registry) {
	engine.GET("/status", func(c *gin.Context) {
		health := registry.HealthAll(c.Request.Context())
		status := "OK"
		code := http.StatusOK
		for _, h := range health {
			if h.Status == component.StatusUnhealthy {
				status = "DEGRADED"
				code = http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(code, gin.H{"status": status, "components": health})
	})
}

// RegisterVersion mounts GET /version reporting build info and site name.
func RegisterVersion(engine *gin.Engine, site string) {
	engine.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": version.GetShortVersion(),
			"site":    site,
		})
	})
}
