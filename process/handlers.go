package process

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	apperrors "github.com/nimbusworks/dfm/errors"
	"github.com/nimbusworks/dfm/server"
)

// RegisterRoutes mounts the client-facing routes on the engine.
func (s *Service) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/discover", s.handleDiscover)
	engine.POST("/process", s.handleProcess)
	engine.GET("/responses/:request_id", s.handleResponses)
	engine.POST("/cancel/:request_id", s.handleCancel)
}

func (s *Service) handleDiscover(c *gin.Context) {
	server.RespondOK(c, gin.H{"providers": s.Discover()})
}

func (s *Service) handleProcess(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		server.RespondWithError(c, apperrors.Validation("cannot read request body"))
		return
	}

	var pipeline api.Pipeline
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pipeline); err != nil {
		server.RespondWithError(c, apperrors.BadPipeline(err.Error()))
		return
	}

	requestID, err := s.Submit(c.Request.Context(), pipeline)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, gin.H{"request_id": requestID.String()})
}

func (s *Service) handleResponses(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("request_id"))
	if err != nil {
		server.RespondWithError(c, apperrors.NoSuchRequest(c.Param("request_id")))
		return
	}

	max := 0
	if raw := c.Query("max"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			max = n
		}
	}
	timeout := time.Duration(0)
	if raw := c.Query("timeout_ms"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	responses, err := s.Responses(c.Request.Context(), requestID, max, timeout)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"responses": responses})
}

func (s *Service) handleCancel(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("request_id"))
	if err != nil {
		server.RespondWithError(c, apperrors.NoSuchRequest(c.Param("request_id")))
		return
	}
	if err := s.Cancel(c.Request.Context(), requestID); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"ok": true})
}
