package execute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/cache"
	apperrors "github.com/nimbusworks/dfm/errors"
	"github.com/nimbusworks/dfm/execute/adapter"
	"github.com/nimbusworks/dfm/fingerprint"
	"github.com/nimbusworks/dfm/logger"
	"github.com/nimbusworks/dfm/observability"
	"github.com/nimbusworks/dfm/resilience"
)

// Pool runs the executor workers.
type Pool struct {
	client     *broker.Client
	cache      *cache.Cache
	site       *Site
	cfg        Config
	log        *logger.Logger
	heartbeats *heartbeatManager
}

// NewPool assembles the executor over its collaborators.
func NewPool(client *broker.Client, resultCache *cache.Cache, site *Site, cfg Config, log *logger.Logger) *Pool {
	cfg.ApplyDefaults()
	return &Pool{
		client:     client,
		cache:      resultCache,
		site:       site,
		cfg:        cfg,
		log:        log.WithComponent("executor"),
		heartbeats: newHeartbeatManager(client, site.Name(), site.Config().HeartbeatInterval, log),
	}
}

// Run is one worker's loop: pop, execute, repeat until ctx is done.
// Transient broker errors back off instead of spinning.
func (p *Pool) Run(ctx context.Context, workerID int) {
	log := p.log.WithFields(logger.Fields("worker", workerID))
	log.Info("Worker started")

	backoff := resilience.DefaultRetryConfig()
	for {
		if ctx.Err() != nil {
			log.Info("Worker stopping")
			return
		}
		item, ok, err := p.client.PopWork(ctx, p.cfg.PopTimeout, p.claimTTL())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("Work pop failed, backing off", logger.ErrorFields("pop", err))
			_ = resilience.RetryFunc(ctx, backoff, func() error { return p.client.Ping(ctx) })
			continue
		}
		if !ok {
			continue
		}
		p.runNode(ctx, item)
		if err := p.client.AckWork(ctx, item); err != nil {
			log.Warn("Work ack failed", logger.ErrorFields("ack", err))
		}
	}
}

// claimTTL outlives the longest expected node run so live items are never
// reclaimed from under their worker.
func (p *Pool) claimTTL() time.Duration {
	return p.cfg.NodeTimeout + time.Minute
}

// Janitor periodically returns work items whose worker died back onto the
// queue. One janitor per executor process is plenty.
func (p *Pool) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		moved, err := p.client.RequeueStale(ctx)
		if err != nil {
			p.log.Warn("Stale requeue failed", logger.ErrorFields("requeue", err))
			continue
		}
		if moved > 0 {
			p.log.Info("Requeued stale work items", logger.Fields("count", moved))
		}
	}
}

// runNode drives one node activation through its full lifecycle.
func (p *Pool) runNode(ctx context.Context, item broker.WorkItem) {
	log := p.log.WithRequest(item.RequestID.String()).WithFields(logger.Fields(
		logger.FieldNodeID, item.NodeID.String()))

	req, err := p.client.LoadRequest(ctx, item.RequestID)
	if err != nil {
		if errors.Is(err, broker.ErrNoSuchRequest) {
			log.Warn("Dropping work for unknown request")
			return
		}
		log.Error("Request load failed", logger.ErrorFields("load", err))
		return
	}

	node := req.Pipeline.Node(item.NodeID)
	if node == nil {
		log.Warn("Dropping work for unknown node")
		return
	}

	// drain cancelled requests on pick
	if req.Cancelled || time.Since(req.CreatedAt) > p.cfg.RequestTimeout {
		p.cancelRemaining(ctx, item.RequestID, uuid.Nil)
		return
	}

	state := req.NodeState[item.NodeID]
	if state.IsTerminal() || state == api.StateRunning {
		log.Debug("Dropping duplicate activation", logger.Fields("state", state))
		return
	}

	if _, err := p.client.UpdateRequest(ctx, item.RequestID, func(r *api.Request) error {
		r.NodeState[item.NodeID] = api.StateRunning
		return nil
	}); err != nil {
		log.Error("Running transition failed", logger.ErrorFields("update", err))
		return
	}
	_ = p.client.PushResponse(ctx, api.NewStatusResponse(
		item.RequestID, item.NodeID, p.site.Name(), api.StateRunning, ""))
	p.heartbeats.Track(ctx, item.RequestID)

	execCtx, span := observability.StartSpan(ctx, "execute.node")
	span.SetAttributes(observability.String("api_class", node.APIClass))
	defer span.End()

	fp, err := p.fingerprintFor(execCtx, req, item.NodeID)
	if err != nil {
		p.failNode(execCtx, req, node, apperrors.AdapterBadInput(err.Error()))
		return
	}

	// per-node soft timeout bounded by the request's hard deadline
	deadline := time.Now().Add(p.cfg.NodeTimeout)
	if hard := req.CreatedAt.Add(p.cfg.RequestTimeout); hard.Before(deadline) {
		deadline = hard
	}
	nodeCtx, cancelNode := context.WithDeadline(execCtx, deadline)
	defer cancelNode()
	stopWatch := p.watchCancellation(nodeCtx, cancelNode, item)
	defer stopWatch()

	// cache fast path
	if !node.ForceCompute {
		served, err := p.tryServeFromCache(nodeCtx, req, node, fp, log)
		if err != nil {
			p.failNode(execCtx, req, node, apperrors.Internal(err))
			return
		}
		if served {
			p.completeNode(execCtx, req, node)
			return
		}
	} else {
		// recomputation still respects the single-producer rule
		if _, err := p.cache.TryAcquireBuilder(nodeCtx, fp); err != nil {
			log.Warn("Builder acquire failed", logger.ErrorFields("lock", err))
		}
	}

	runErr := p.runAdapter(nodeCtx, req, node, fp)
	switch {
	case runErr == nil:
		if err := p.cache.Seal(execCtx, fp); err != nil {
			log.Warn("Cache seal failed", logger.ErrorFields("seal", err))
		}
		p.completeNode(execCtx, req, node)

	case errors.Is(runErr, adapter.ErrSuspended):
		// the node goes dormant; the scheduler re-activates it later
		_ = p.cache.Invalidate(execCtx, fp)
		_ = p.cache.ReleaseBuilder(execCtx, fp)
		if _, err := p.client.UpdateRequest(execCtx, req.RequestID, func(r *api.Request) error {
			r.NodeState[node.NodeID] = api.StatePending
			return nil
		}); err != nil {
			log.Error("Suspend transition failed", logger.ErrorFields("update", err))
		}
		log.Info("Node suspended awaiting reschedule")

	case isCancellation(runErr) || p.requestCancelled(execCtx, req.RequestID):
		_ = p.cache.Invalidate(execCtx, fp)
		_ = p.cache.ReleaseBuilder(execCtx, fp)
		p.cancelRemaining(execCtx, req.RequestID, uuid.Nil)

	default:
		_ = p.cache.Invalidate(execCtx, fp)
		_ = p.cache.ReleaseBuilder(execCtx, fp)
		p.failNode(execCtx, req, node, runErr)
	}
}

// tryServeFromCache streams a sealed cache entry into the delivery plane.
// When another producer holds the builder lock, it waits for the seal. The
// false return means the caller must produce.
func (p *Pool) tryServeFromCache(ctx context.Context, req *api.Request, node *api.FunctionCall, fp string, log *logger.Logger) (bool, error) {
	for {
		values, hit, err := p.cache.Get(ctx, fp)
		if err != nil {
			return false, err
		}
		if hit {
			log.Info("Cache hit", logger.Fields("fingerprint", fp, "values", len(values)))
			observability.CacheHits.Add(ctx, 1)
			for _, value := range values {
				if err := p.deliverValue(ctx, req, node, value); err != nil {
					return false, err
				}
			}
			return true, nil
		}

		won, err := p.cache.TryAcquireBuilder(ctx, fp)
		if err != nil {
			return false, err
		}
		if won {
			return false, nil
		}

		// another producer is building this fingerprint; wait for its seal
		log.Info("Waiting for concurrent producer", logger.Fields("fingerprint", fp))
		values, sealed, err := p.cache.WaitSealed(ctx, fp, p.cfg.NodeTimeout)
		if err != nil {
			return false, err
		}
		if sealed {
			for _, value := range values {
				if err := p.deliverValue(ctx, req, node, value); err != nil {
					return false, err
				}
			}
			return true, nil
		}
		// lock expired without a seal (producer died); contend again
	}
}

// runAdapter instantiates the adapter and pumps its body, retrying
// retryable kinds from a clean slate.
func (p *Pool) runAdapter(ctx context.Context, req *api.Request, node *api.FunctionCall, fp string) error {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = p.cfg.RetryAttempts
	retryCfg.RetryIf = func(err error) bool {
		if errors.Is(err, adapter.ErrSuspended) {
			return false
		}
		return resilience.RetryableKindsOnly(err)
	}

	return resilience.RetryFunc(ctx, retryCfg, func() error {
		// a retried attempt starts from scratch
		if err := p.cache.Invalidate(ctx, fp); err != nil {
			return err
		}

		factory, adapterCfg, provider, err := p.site.Resolve(node.ProviderOrDefault(), node.APIClass)
		if err != nil {
			return apperrors.AdapterBadInput(err.Error())
		}
		params, err := api.DecodeParams(node.APIClass, node.Params)
		if err != nil {
			return apperrors.AdapterBadInput(err.Error())
		}

		continuation, _, err := p.client.Continuation(ctx, req.RequestID, node.NodeID)
		if err != nil {
			return err
		}

		rt := newNodeRuntime(p.client, p.site.Name(), req.RequestID, node.NodeID, continuation)
		inst, err := factory(adapter.Deps{
			Runtime:  rt,
			Provider: provider,
			Config:   adapterCfg,
			Params:   params,
			Inputs:   newBrokerInputs(p.client, req.RequestID, node.NodeID, len(node.Inputs)),
		})
		if err != nil {
			return err
		}

		index := 0
		emit := func(emitCtx context.Context, value json.RawMessage) error {
			if err := p.cache.Put(emitCtx, fp, index, value); err != nil {
				return err
			}
			index++
			return p.deliverValue(emitCtx, req, node, value)
		}
		return inst.Body(ctx, emit)
	})
}

// deliverValue routes one produced value: to the client for output nodes
// and to every downstream consumer's input buffer. First values ready
// unary consumers immediately.
func (p *Pool) deliverValue(ctx context.Context, req *api.Request, node *api.FunctionCall, value json.RawMessage) error {
	if node.IsOutput {
		resp, err := api.NewValueResponse(req.RequestID, node.NodeID, json.RawMessage(value))
		if err != nil {
			return err
		}
		if err := p.client.PushResponse(ctx, resp); err != nil {
			return err
		}
	}

	for i := range req.Pipeline.Nodes {
		consumer := &req.Pipeline.Nodes[i]
		for port, input := range consumer.Inputs {
			if input != node.NodeID {
				continue
			}
			if err := p.client.PushInput(ctx, req.RequestID, consumer.NodeID, port, value); err != nil {
				return err
			}
		}
		if len(consumer.Inputs) == 1 && consumer.Inputs[0] == node.NodeID {
			if _, err := TryMarkReady(ctx, p.client, p.site.Name(), req.RequestID, consumer.NodeID, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// completeNode closes downstream streams, marks the node COMPLETED, and
// wakes up whoever was waiting on it.
func (p *Pool) completeNode(ctx context.Context, req *api.Request, node *api.FunctionCall) {
	log := p.log.WithRequest(req.RequestID.String())

	for i := range req.Pipeline.Nodes {
		consumer := &req.Pipeline.Nodes[i]
		for port, input := range consumer.Inputs {
			if input == node.NodeID {
				if err := p.client.CloseInput(ctx, req.RequestID, consumer.NodeID, port); err != nil {
					log.Warn("Input close failed", logger.ErrorFields("close", err))
				}
			}
		}
	}

	updated, err := p.client.UpdateRequest(ctx, req.RequestID, func(r *api.Request) error {
		r.NodeState[node.NodeID] = api.StateCompleted
		return nil
	})
	if err != nil {
		log.Error("Completed transition failed", logger.ErrorFields("update", err))
		return
	}
	_ = p.client.PushResponse(ctx, api.NewStatusResponse(
		req.RequestID, node.NodeID, p.site.Name(), api.StateCompleted, ""))
	observability.NodesExecuted.Add(ctx, 1)

	_ = p.client.ClearContinuation(ctx, req.RequestID, node.NodeID)
	if err := p.client.DropInputs(ctx, req.RequestID, node.NodeID, len(node.Inputs)); err != nil {
		log.Warn("Input drop failed", logger.ErrorFields("drop", err))
	}

	// dependents over value edges and after edges may be ready now
	for _, dep := range updated.Pipeline.Dependents()[node.NodeID] {
		if _, err := TryMarkReady(ctx, p.client, p.site.Name(), req.RequestID, dep, false); err != nil {
			log.Warn("Readiness check failed", logger.ErrorFields("ready", err))
		}
	}
	for _, dep := range updated.Pipeline.AfterDependents()[node.NodeID] {
		if _, err := TryMarkReady(ctx, p.client, p.site.Name(), req.RequestID, dep, false); err != nil {
			log.Warn("Readiness check failed", logger.ErrorFields("ready", err))
		}
	}

	if updated.AllTerminal() {
		p.heartbeats.Untrack(req.RequestID)
	}
}

// failNode marks the node FAILED, surfaces the error, and cancels its
// transitive dependents. Sibling subgraphs keep running.
func (p *Pool) failNode(ctx context.Context, req *api.Request, node *api.FunctionCall, cause error) {
	log := p.log.WithRequest(req.RequestID.String())
	kind := apperrors.KindOf(cause)
	log.Error("Node failed", logger.Fields(
		logger.FieldNodeID, node.NodeID.String(), "kind", string(kind), "error", cause.Error()))

	dependents := TransitiveDependents(&req.Pipeline, node.NodeID)
	updated, err := p.client.UpdateRequest(ctx, req.RequestID, func(r *api.Request) error {
		r.NodeState[node.NodeID] = api.StateFailed
		for _, dep := range dependents {
			if !r.NodeState[dep].IsTerminal() {
				r.NodeState[dep] = api.StateCancelled
			}
		}
		return nil
	})
	if err != nil {
		log.Error("Failed transition failed", logger.ErrorFields("update", err))
		return
	}

	_ = p.client.PushResponse(ctx, api.NewErrorResponse(
		req.RequestID, node.NodeID, string(kind), cause.Error()))
	_ = p.client.PushResponse(ctx, api.NewStatusResponse(
		req.RequestID, node.NodeID, p.site.Name(), api.StateFailed, cause.Error()))

	for _, dep := range dependents {
		if updated.NodeState[dep] != api.StateCancelled {
			continue
		}
		resp := api.NewStatusResponse(req.RequestID, dep, p.site.Name(), api.StateCancelled,
			fmt.Sprintf("cancelled due to node %s", node.NodeID))
		resp.OriginNodeID = &node.NodeID
		_ = p.client.PushResponse(ctx, resp)
	}

	if updated.AllTerminal() {
		p.heartbeats.Untrack(req.RequestID)
	}
}

// cancelRemaining transitions every non-terminal node of a request to
// CANCELLED. Used for explicit cancels and request timeouts.
func (p *Pool) cancelRemaining(ctx context.Context, requestID, origin uuid.UUID) {
	log := p.log.WithRequest(requestID.String())

	var cancelled []uuid.UUID
	updated, err := p.client.UpdateRequest(ctx, requestID, func(r *api.Request) error {
		cancelled = cancelled[:0]
		for id, state := range r.NodeState {
			if !state.IsTerminal() {
				r.NodeState[id] = api.StateCancelled
				cancelled = append(cancelled, id)
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, broker.ErrNoSuchRequest) {
			log.Error("Cancel transition failed", logger.ErrorFields("update", err))
		}
		return
	}

	for _, id := range cancelled {
		resp := api.NewStatusResponse(requestID, id, p.site.Name(), api.StateCancelled, "")
		if origin != uuid.Nil {
			resp.OriginNodeID = &origin
		}
		_ = p.client.PushResponse(ctx, resp)
	}

	if updated.AllTerminal() {
		p.heartbeats.Untrack(requestID)
	}
}

// watchCancellation polls the request record while a node runs and fires
// the node's cancel function when the request is cancelled or the node was
// cancelled by a failure cascade. Workers thereby observe cancellation at
// await-point granularity.
func (p *Pool) watchCancellation(ctx context.Context, cancel context.CancelFunc, item broker.WorkItem) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			req, err := p.client.LoadRequest(ctx, item.RequestID)
			if err != nil {
				cancel()
				return
			}
			if req.Cancelled || req.NodeState[item.NodeID] == api.StateCancelled {
				cancel()
				return
			}
		}
	}()
	return func() { close(done) }
}

// requestCancelled re-reads the cancelled flag.
func (p *Pool) requestCancelled(ctx context.Context, requestID uuid.UUID) bool {
	req, err := p.client.LoadRequest(ctx, requestID)
	if err != nil {
		return false
	}
	return req.Cancelled
}

// isCancellation folds the context and kind signals into one predicate.
func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return apperrors.KindOf(err) == apperrors.KindCancelled
}

// fingerprintFor computes (and memoizes into the request record) the
// fingerprint of a node from its api_class, canonical params, provider, and
// the ordered fingerprints of its upstream nodes.
func (p *Pool) fingerprintFor(ctx context.Context, req *api.Request, nodeID uuid.UUID) (string, error) {
	memo := make(map[uuid.UUID]string, len(req.Fingerprints))
	for id, fp := range req.Fingerprints {
		memo[id] = fp
	}

	var compute func(id uuid.UUID) (string, error)
	compute = func(id uuid.UUID) (string, error) {
		if fp, ok := memo[id]; ok {
			return fp, nil
		}
		node := req.Pipeline.Node(id)
		if node == nil {
			return "", fmt.Errorf("fingerprint: unknown node %s", id)
		}
		upstream := make([]string, len(node.Inputs))
		for i, input := range node.Inputs {
			fp, err := compute(input)
			if err != nil {
				return "", err
			}
			upstream[i] = fp
		}
		fp, err := fingerprint.Compute(node.APIClass, node.Params, node.ProviderOrDefault(), upstream)
		if err != nil {
			return "", err
		}
		memo[id] = fp
		return fp, nil
	}

	fp, err := compute(nodeID)
	if err != nil {
		return "", err
	}

	if _, err := p.client.UpdateRequest(ctx, req.RequestID, func(r *api.Request) error {
		if r.Fingerprints == nil {
			r.Fingerprints = make(map[uuid.UUID]string, len(memo))
		}
		for id, value := range memo {
			r.Fingerprints[id] = value
		}
		return nil
	}); err != nil {
		return "", err
	}
	return fp, nil
}
