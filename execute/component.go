package execute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimbusworks/dfm/component"
	"github.com/nimbusworks/dfm/logger"
)

// Component runs the worker pool as a lifecycle-managed component.
type Component struct {
	pool *Pool
	cfg  Config
	log  *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewComponent wraps a pool for the component registry.
func NewComponent(pool *Pool, cfg Config, log *logger.Logger) *Component {
	return &Component{
		pool: pool,
		cfg:  cfg,
		log:  log.WithComponent("executor"),
	}
}

var _ component.Component = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "executor" }

// Start spawns the worker pool.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("executor already started")
	}

	// workers outlive the start call; they stop via the component's own
	// cancel, not the bootstrap context
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			c.pool.Run(runCtx, workerID)
		}(i)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pool.Janitor(runCtx, 30*time.Second)
	}()
	c.log.Info("Executor started", logger.Fields("workers", c.cfg.Workers))
	return nil
}

// Stop cancels the workers and waits for them to drain.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		c.pool.heartbeats.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor stop: %w", ctx.Err())
	}
}

// Health reports the pool state.
func (c *Component) Health(_ context.Context) component.Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "not running"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe returns infrastructure summary info for the startup display.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Executor",
		Type:    "pool",
		Details: fmt.Sprintf("workers=%d node_timeout=%s", c.cfg.Workers, c.cfg.NodeTimeout),
	}
}
