package execute

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/broker"
)

// errNotReady aborts a readiness transition inside UpdateRequest.
var errNotReady = errors.New("node not ready")

// TryMarkReady attempts the PENDING→READY transition for a node and, on
// success, emits the READY status and enqueues the node (or schedules it if
// its not_before lies in the future). hintFirstValue asserts that a first
// upstream value was just delivered, which readies unary consumers before
// their upstream completes.
//
// The transition runs under the broker's optimistic concurrency, so
// concurrent producers racing to ready the same node enqueue it exactly
// once.
func TryMarkReady(ctx context.Context, client *broker.Client, site string, requestID, nodeID uuid.UUID, hintFirstValue bool) (bool, error) {
	updated, err := client.UpdateRequest(ctx, requestID, func(r *api.Request) error {
		if r.Cancelled {
			return errNotReady
		}
		node := r.Pipeline.Node(nodeID)
		if node == nil {
			return errNotReady
		}
		if r.NodeState[nodeID] != api.StatePending {
			return errNotReady
		}
		if !nodeEligible(r, node, hintFirstValue) {
			return errNotReady
		}
		r.NodeState[nodeID] = api.StateReady
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotReady) {
			return false, nil
		}
		return false, err
	}

	node := updated.Pipeline.Node(nodeID)
	if err := client.PushResponse(ctx, api.NewStatusResponse(requestID, nodeID, site, api.StateReady, "")); err != nil {
		return false, err
	}

	item := broker.WorkItem{RequestID: requestID, NodeID: nodeID}
	if node.NotBefore != nil && node.NotBefore.After(time.Now()) {
		return true, client.ScheduleDelayed(ctx, item, *node.NotBefore)
	}
	return true, client.PushWork(ctx, item)
}

// nodeEligible evaluates the readiness rules against the request record:
// every `after` target terminal, and the input condition for the node's
// arity.
func nodeEligible(r *api.Request, node *api.FunctionCall, hintFirstValue bool) bool {
	for _, after := range node.After {
		if !r.NodeState[after].IsTerminal() {
			return false
		}
	}

	spec, ok := api.Lookup(node.APIClass)
	if !ok {
		return false
	}
	switch spec.Arity {
	case api.Nullary:
		return true
	case api.Unary:
		// unary consumers are streams themselves: the first upstream value
		// readies them
		if hintFirstValue {
			return true
		}
		return r.NodeState[node.Inputs[0]] == api.StateCompleted
	default:
		// n-ary consumers start once every upstream stream closed
		for _, input := range node.Inputs {
			if r.NodeState[input] != api.StateCompleted {
				return false
			}
		}
		return true
	}
}

// InitialEnqueue computes the initial ready set of a freshly stored request
// and enqueues it: nodes with no inputs whose after-set is already
// terminal (vacuously, nodes with no after edges).
func InitialEnqueue(ctx context.Context, client *broker.Client, site string, req *api.Request) error {
	for i := range req.Pipeline.Nodes {
		node := &req.Pipeline.Nodes[i]
		if len(node.Inputs) > 0 || len(node.After) > 0 {
			continue
		}
		if _, err := TryMarkReady(ctx, client, site, req.RequestID, node.NodeID, false); err != nil {
			return err
		}
	}
	return nil
}

// TransitiveDependents collects every node reachable from origin over
// inputs and after edges.
func TransitiveDependents(p *api.Pipeline, origin uuid.UUID) []uuid.UUID {
	valueDeps := p.Dependents()
	afterDeps := p.AfterDependents()

	seen := map[uuid.UUID]bool{origin: true}
	queue := []uuid.UUID{origin}
	var result []uuid.UUID

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range append(valueDeps[current], afterDeps[current]...) {
			if seen[next] {
				continue
			}
			seen[next] = true
			result = append(result, next)
			queue = append(queue, next)
		}
	}
	return result
}
