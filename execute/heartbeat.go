package execute

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/logger"
)

// heartbeatManager runs one background producer per live request, writing a
// heartbeat to the response queue every interval while the request has
// non-terminal nodes. One producer per request, not per node, bounds
// response-queue pressure.
type heartbeatManager struct {
	client   *broker.Client
	site     string
	interval time.Duration
	log      *logger.Logger

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
	wg     sync.WaitGroup
}

func newHeartbeatManager(client *broker.Client, site string, interval time.Duration, log *logger.Logger) *heartbeatManager {
	return &heartbeatManager{
		client:   client,
		site:     site,
		interval: interval,
		log:      log.WithComponent("heartbeat"),
		active:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// Track starts the heartbeat producer for a request if none is running.
func (h *heartbeatManager) Track(ctx context.Context, requestID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.active[requestID]; ok {
		return
	}

	hbCtx, cancel := context.WithCancel(ctx)
	h.active[requestID] = cancel
	h.wg.Add(1)
	go h.run(hbCtx, requestID)
}

// Untrack stops the producer for a request.
func (h *heartbeatManager) Untrack(requestID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.active[requestID]; ok {
		cancel()
		delete(h.active, requestID)
	}
}

// Shutdown stops all producers and waits for them.
func (h *heartbeatManager) Shutdown() {
	h.mu.Lock()
	for id, cancel := range h.active {
		cancel()
		delete(h.active, id)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *heartbeatManager) run(ctx context.Context, requestID uuid.UUID) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		req, err := h.client.LoadRequest(ctx, requestID)
		if err != nil {
			if !errors.Is(err, broker.ErrNoSuchRequest) {
				h.log.Warn("Heartbeat request load failed", logger.ErrorFields("load", err))
			}
			h.Untrack(requestID)
			return
		}
		if req.AllTerminal() {
			h.Untrack(requestID)
			return
		}

		if err := h.client.PushResponse(ctx, api.NewHeartbeatResponse(requestID, h.site)); err != nil {
			h.log.Warn("Heartbeat push failed", logger.ErrorFields("push", err))
		}
	}
}
