package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestWellKnownIDDeterministic(t *testing.T) {
	a := WellKnownID("render")
	b := WellKnownID("render")
	if a != b {
		t.Error("same name must produce the same id")
	}
	if WellKnownID("render") == WellKnownID("notify") {
		t.Error("different names must produce different ids")
	}
	if a.Version() != 4 {
		t.Errorf("expected version 4 uuid, got %d", a.Version())
	}
}

func TestArityMatches(t *testing.T) {
	cases := []struct {
		arity  Arity
		inputs int
		want   bool
	}{
		{Nullary, 0, true},
		{Nullary, 1, false},
		{Unary, 1, true},
		{Unary, 2, false},
		{Binary, 2, true},
		{Binary, 1, false},
		{Variadic, 1, true},
		{Variadic, 5, true},
		{Variadic, 0, false},
	}
	for _, c := range cases {
		if got := c.arity.Matches(c.inputs); got != c.want {
			t.Errorf("%s.Matches(%d) = %v, want %v", c.arity, c.inputs, got, c.want)
		}
	}
}

func TestLookupBuiltins(t *testing.T) {
	spec, ok := Lookup("dfm.api.dfm.GreetMe")
	if !ok {
		t.Fatal("GreetMe must be registered")
	}
	if spec.Arity != Nullary {
		t.Errorf("unexpected arity %s", spec.Arity)
	}

	if _, ok := Lookup("dfm.api.dfm.Nonsense"); ok {
		t.Error("unknown class must not resolve")
	}
}

func TestDecodeParams(t *testing.T) {
	params, err := DecodeParams("dfm.api.dfm.GreetMe", json.RawMessage(`{"name":"World"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	greet, ok := params.(*GreetMeParams)
	if !ok {
		t.Fatalf("unexpected params type %T", params)
	}
	if greet.Name != "World" {
		t.Errorf("unexpected name %q", greet.Name)
	}
}

func TestDecodeParamsRejectsUnknownField(t *testing.T) {
	_, err := DecodeParams("dfm.api.dfm.GreetMe", json.RawMessage(`{"name":"World","shout":true}`))
	if err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestDecodeParamsRequiresFields(t *testing.T) {
	_, err := DecodeParams("dfm.api.dfm.GreetMe", json.RawMessage(`{}`))
	if err == nil {
		t.Error("expected error for missing name")
	}
}

func TestPipelineDependents(t *testing.T) {
	a := NewFunctionCall("dfm.api.dfm.Constant")
	b := NewFunctionCall("dfm.api.xarray.VariableNorm")
	b.Inputs = []uuid.UUID{a.NodeID}
	c := NewFunctionCall("dfm.api.dfm.SignalClient")
	c.After = []uuid.UUID{b.NodeID}

	p := Pipeline{Nodes: []FunctionCall{a, b, c}}

	deps := p.Dependents()
	if len(deps[a.NodeID]) != 1 || deps[a.NodeID][0] != b.NodeID {
		t.Errorf("unexpected dependents of a: %v", deps[a.NodeID])
	}

	afterDeps := p.AfterDependents()
	if len(afterDeps[b.NodeID]) != 1 || afterDeps[b.NodeID][0] != c.NodeID {
		t.Errorf("unexpected after-dependents of b: %v", afterDeps[b.NodeID])
	}
}

func TestRequestAllTerminal(t *testing.T) {
	a := NewFunctionCall("dfm.api.dfm.Constant")
	req := NewRequest(uuid.New(), Pipeline{Nodes: []FunctionCall{a}}, time.Now())
	if req.AllTerminal() {
		t.Error("fresh request must not be terminal")
	}
	req.NodeState[a.NodeID] = StateCompleted
	if !req.AllTerminal() {
		t.Error("expected terminal request")
	}
}

func TestResponseEnvelopes(t *testing.T) {
	requestID := uuid.New()
	nodeID := uuid.New()

	value, err := NewValueResponse(requestID, nodeID, 42)
	if err != nil {
		t.Fatal(err)
	}
	var got int
	if err := value.DecodeValue(&got); err != nil || got != 42 {
		t.Errorf("round trip failed: %v %d", err, got)
	}

	status := NewStatusResponse(requestID, nodeID, "local", StateCompleted, "done")
	if !status.IsTerminalFor(nodeID) {
		t.Error("COMPLETED status must be terminal for its node")
	}
	if status.IsTerminalFor(uuid.New()) {
		t.Error("status must not be terminal for other nodes")
	}

	running := NewStatusResponse(requestID, nodeID, "local", StateRunning, "")
	if running.IsTerminalFor(nodeID) {
		t.Error("RUNNING must not be terminal")
	}

	errResp := NewErrorResponse(requestID, nodeID, "UPSTREAM_UNAVAILABLE", "dial refused")
	if !errResp.IsTerminalFor(nodeID) {
		t.Error("error envelopes are terminal for their node")
	}

	hb := NewHeartbeatResponse(requestID, "local")
	if hb.NodeID != nil {
		t.Error("heartbeats are per-request, not per-node")
	}
}
