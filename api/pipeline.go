package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultProvider is the provider namespace used when a node does not name
// one.
const DefaultProvider = "dfm"

// FunctionCall is one node of a pipeline: a single typed function
// invocation with its parameter record and its upstream references.
type FunctionCall struct {
	// NodeID uniquely identifies the node within the pipeline. Either
	// client-assigned (see WellKnownID) or generated on construction.
	NodeID uuid.UUID `json:"node_id"`
	// APIClass selects the function being invoked, e.g.
	// "dfm.api.dfm.GreetMe". Drawn from the closed registry.
	APIClass string `json:"api_class"`
	// Provider names the provider namespace resolving the adapter.
	Provider string `json:"provider,omitempty"`
	// Params is the raw parameter record, validated against the api_class
	// schema on submission.
	Params json.RawMessage `json:"params,omitempty"`
	// Inputs are the upstream nodes whose streamed values feed this node,
	// in port order.
	Inputs []uuid.UUID `json:"inputs,omitempty"`
	// After lists nodes that must reach a terminal state before this node
	// becomes eligible, independent of value flow.
	After []uuid.UUID `json:"after,omitempty"`
	// IsOutput routes produced values to the client response queue.
	IsOutput bool `json:"is_output,omitempty"`
	// ForceCompute skips cache lookups for this node.
	ForceCompute bool `json:"force_compute,omitempty"`
	// NotBefore delays execution of this node until the given time.
	NotBefore *time.Time `json:"not_before,omitempty"`
}

// ProviderOrDefault returns the node's provider, falling back to
// DefaultProvider.
func (f *FunctionCall) ProviderOrDefault() string {
	if f.Provider == "" {
		return DefaultProvider
	}
	return f.Provider
}

// NewFunctionCall constructs a node with a fresh random id.
func NewFunctionCall(apiClass string) FunctionCall {
	return FunctionCall{
		NodeID:   uuid.New(),
		APIClass: apiClass,
	}
}

// Pipeline is a client-submitted DAG of function-call nodes.
type Pipeline struct {
	Nodes []FunctionCall `json:"nodes"`
}

// Node returns the node with the given id, or nil.
func (p *Pipeline) Node(id uuid.UUID) *FunctionCall {
	for i := range p.Nodes {
		if p.Nodes[i].NodeID == id {
			return &p.Nodes[i]
		}
	}
	return nil
}

// NodeIDs returns the ids of all nodes in submission order.
func (p *Pipeline) NodeIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(p.Nodes))
	for i := range p.Nodes {
		ids[i] = p.Nodes[i].NodeID
	}
	return ids
}

// Dependents returns, per node, the ids of nodes consuming its values.
func (p *Pipeline) Dependents() map[uuid.UUID][]uuid.UUID {
	deps := make(map[uuid.UUID][]uuid.UUID)
	for i := range p.Nodes {
		for _, input := range p.Nodes[i].Inputs {
			deps[input] = append(deps[input], p.Nodes[i].NodeID)
		}
	}
	return deps
}

// AfterDependents returns, per node, the ids of nodes ordered after it.
func (p *Pipeline) AfterDependents() map[uuid.UUID][]uuid.UUID {
	deps := make(map[uuid.UUID][]uuid.UUID)
	for i := range p.Nodes {
		for _, after := range p.Nodes[i].After {
			deps[after] = append(deps[after], p.Nodes[i].NodeID)
		}
	}
	return deps
}

// Request is the runtime record of one pipeline submission.
type Request struct {
	RequestID uuid.UUID               `json:"request_id"`
	Pipeline  Pipeline                `json:"pipeline"`
	NodeState map[uuid.UUID]NodeState `json:"node_state"`
	// Fingerprints caches each node's computed fingerprint, filled lazily by
	// the executor.
	Fingerprints map[uuid.UUID]string `json:"fingerprints,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	Cancelled    bool                 `json:"cancelled,omitempty"`
}

// NewRequest creates a request record for a verified pipeline with every
// node PENDING.
func NewRequest(requestID uuid.UUID, pipeline Pipeline, now time.Time) *Request {
	states := make(map[uuid.UUID]NodeState, len(pipeline.Nodes))
	for i := range pipeline.Nodes {
		states[pipeline.Nodes[i].NodeID] = StatePending
	}
	return &Request{
		RequestID:    requestID,
		Pipeline:     pipeline,
		NodeState:    states,
		Fingerprints: make(map[uuid.UUID]string),
		CreatedAt:    now,
	}
}

// AllTerminal reports whether every node in the request reached a terminal
// state.
func (r *Request) AllTerminal() bool {
	for _, state := range r.NodeState {
		if !state.IsTerminal() {
			return false
		}
	}
	return true
}
