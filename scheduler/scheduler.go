// Package scheduler implements the delayed-work mover: it watches the
// delayed zset and re-enqueues nodes onto the execution queue once their
// activation time arrives. It never inspects node params or api_class.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/logger"
	"github.com/nimbusworks/dfm/observability"
	"github.com/nimbusworks/dfm/resilience"
)

// Config is the scheduler service configuration.
type Config struct {
	// Site is this site's name, stamped on READY statuses.
	Site string `yaml:"site" mapstructure:"site"`
	// MaxSleep bounds how long the loop sleeps without a wake-up.
	MaxSleep time.Duration `yaml:"max_sleep" mapstructure:"max_sleep"`
	// ClaimTTL is the lifetime of move idempotence sentinels.
	ClaimTTL time.Duration `yaml:"claim_ttl" mapstructure:"claim_ttl"`
}

// ApplyDefaults applies default values.
func (c *Config) ApplyDefaults() {
	if c.MaxSleep <= 0 {
		c.MaxSleep = 500 * time.Millisecond
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = time.Hour
	}
}

// Scheduler moves due work. It holds no local state; restarting one (or
// running several) is safe.
type Scheduler struct {
	client *broker.Client
	cfg    Config
	log    *logger.Logger
}

// New creates a scheduler.
func New(client *broker.Client, cfg Config, log *logger.Logger) *Scheduler {
	cfg.ApplyDefaults()
	return &Scheduler{
		client: client,
		cfg:    cfg,
		log:    log.WithComponent("scheduler"),
	}
}

// Run is the main loop: peek the earliest entry; move it when due;
// otherwise sleep until due or until a wake-up is signaled. Broker errors
// back off with the standard retry policy.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("Scheduler started")
	sub := s.client.Subscribe(ctx, broker.WakeChannel)
	defer sub.Close()

	backoff := resilience.DefaultRetryConfig()
	for {
		if ctx.Err() != nil {
			s.log.Info("Scheduler stopping")
			return
		}

		moved, sleep, err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("Scheduler tick failed, backing off", logger.ErrorFields("tick", err))
			_ = resilience.RetryFunc(ctx, backoff, func() error { return s.client.Ping(ctx) })
			continue
		}
		if moved {
			continue
		}
		s.client.WaitWake(ctx, sub, sleep)
	}
}

// Tick processes at most one due entry. It reports whether an entry moved
// and, if none did, how long to sleep before the next check.
func (s *Scheduler) Tick(ctx context.Context) (bool, time.Duration, error) {
	item, ok, err := s.client.PeekDelayed(ctx)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return false, s.cfg.MaxSleep, nil
	}

	now := time.Now()
	if item.NotBefore.After(now) {
		sleep := item.NotBefore.Sub(now)
		if sleep > s.cfg.MaxSleep {
			sleep = s.cfg.MaxSleep
		}
		return false, sleep, nil
	}

	// remove first: losing the ZRem race means another scheduler moved it
	taken, err := s.client.TakeDelayed(ctx, item)
	if err != nil {
		return false, 0, err
	}
	if !taken {
		return true, 0, nil
	}

	// duplicate moves of one activation are rendered idempotent by the
	// claim sentinel
	claimKey := broker.ClaimKey(fmt.Sprintf("%s:%d", item.RunID(), item.NotBefore.UnixMilli()))
	won, err := s.client.Claim(ctx, claimKey, s.cfg.ClaimTTL)
	if err != nil {
		return false, 0, err
	}
	if !won {
		s.log.Debug("Skipping already-claimed activation", logger.Fields(
			logger.FieldRequestID, item.RequestID.String()))
		return true, 0, nil
	}

	if err := s.client.PushWork(ctx, item.WorkItem); err != nil {
		return false, 0, err
	}
	s.markReady(ctx, item)
	observability.NodesScheduled.Add(ctx, 1)

	s.log.Info("Moved delayed node to execution queue", logger.Fields(
		logger.FieldRequestID, item.RequestID.String(),
		logger.FieldNodeID, item.NodeID.String()))
	return true, 0, nil
}

// markReady records the READY transition for the moved node. A vanished
// request (TTL expiry) is not an error; the executor drains the work item.
func (s *Scheduler) markReady(ctx context.Context, item broker.DelayedItem) {
	_, err := s.client.UpdateRequest(ctx, item.RequestID, func(r *api.Request) error {
		if r.NodeState[item.NodeID] == api.StatePending {
			r.NodeState[item.NodeID] = api.StateReady
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, broker.ErrNoSuchRequest) {
			s.log.Warn("Ready transition failed", logger.ErrorFields("update", err))
		}
		return
	}
	_ = s.client.PushResponse(ctx, api.NewStatusResponse(
		item.RequestID, item.NodeID, s.cfg.Site, api.StateReady, ""))
}
