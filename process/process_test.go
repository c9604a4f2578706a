package process_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/broker/testutil"
	"github.com/nimbusworks/dfm/config"
	apperrors "github.com/nimbusworks/dfm/errors"
	"github.com/nimbusworks/dfm/execute"
	"github.com/nimbusworks/dfm/logger"
	"github.com/nimbusworks/dfm/process"
)

func testSite(t *testing.T) *execute.Site {
	t.Helper()
	siteCfg, err := config.ParseSiteConfig(map[string]any{
		"site": "local",
		"providers": map[string]any{
			"dfm": map[string]any{
				"description": "built-ins",
				"interface": map[string]any{
					"dfm.api.dfm.Constant":            "constant",
					"dfm.api.dfm.GreetMe":             "greetme",
					"dfm.api.dfm.SignalClient":        "signal",
					"dfm.api.xarray.VariableNorm":     "variablenorm",
					"dfm.api.xarray.AveragePointwise": "averagepointwise",
				},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	site, err := execute.NewSite(siteCfg)
	if err != nil {
		t.Fatal(err)
	}
	return site
}

func testService(t *testing.T) (*process.Service, *broker.Client) {
	t.Helper()
	client, _ := testutil.NewBroker(t)
	svc := process.NewService(client, testSite(t), process.Config{}, logger.NewDefault("test"))
	return svc, client
}

func constantNode(value string, output bool) api.FunctionCall {
	node := api.NewFunctionCall("dfm.api.dfm.Constant")
	node.Params = json.RawMessage(`{"value":` + value + `}`)
	node.IsOutput = output
	return node
}

func TestVerifyAcceptsValidPipeline(t *testing.T) {
	site := testSite(t)
	a := constantNode("1", true)
	b := api.NewFunctionCall("dfm.api.xarray.VariableNorm")
	b.Inputs = []uuid.UUID{a.NodeID}
	p := api.Pipeline{Nodes: []api.FunctionCall{a, b}}
	if err := process.Verify(site, &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyRejectsCycle(t *testing.T) {
	site := testSite(t)
	a := api.NewFunctionCall("dfm.api.xarray.VariableNorm")
	b := api.NewFunctionCall("dfm.api.xarray.VariableNorm")
	a.Inputs = []uuid.UUID{b.NodeID}
	b.Inputs = []uuid.UUID{a.NodeID}
	p := api.Pipeline{Nodes: []api.FunctionCall{a, b}}

	err := process.Verify(site, &p)
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Kind != apperrors.KindBadPipeline {
		t.Fatalf("expected BAD_PIPELINE for cycle, got %v", err)
	}
}

func TestVerifyRejectsUnknownEdge(t *testing.T) {
	site := testSite(t)
	a := api.NewFunctionCall("dfm.api.xarray.VariableNorm")
	a.Inputs = []uuid.UUID{uuid.New()}
	p := api.Pipeline{Nodes: []api.FunctionCall{a}}
	if err := process.Verify(site, &p); err == nil {
		t.Error("expected error for unknown input reference")
	}

	b := constantNode("1", false)
	b.After = []uuid.UUID{uuid.New()}
	p = api.Pipeline{Nodes: []api.FunctionCall{b}}
	if err := process.Verify(site, &p); err == nil {
		t.Error("expected error for unknown after reference")
	}
}

func TestVerifyRejectsUnknownAPIClass(t *testing.T) {
	site := testSite(t)
	node := api.NewFunctionCall("dfm.api.dfm.Nonsense")
	p := api.Pipeline{Nodes: []api.FunctionCall{node}}
	if err := process.Verify(site, &p); err == nil {
		t.Error("expected error for unknown api_class")
	}
}

func TestVerifyRejectsUnofferedProvider(t *testing.T) {
	site := testSite(t)
	node := api.NewFunctionCall("dfm.api.dfm.GreetMe")
	node.Params = json.RawMessage(`{"name":"World"}`)
	node.Provider = "esri"
	p := api.Pipeline{Nodes: []api.FunctionCall{node}}
	if err := process.Verify(site, &p); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestVerifyRejectsArityMismatch(t *testing.T) {
	site := testSite(t)
	a := constantNode("1", false)
	norm := api.NewFunctionCall("dfm.api.xarray.VariableNorm")
	norm.Inputs = []uuid.UUID{a.NodeID, a.NodeID}
	p := api.Pipeline{Nodes: []api.FunctionCall{a, norm}}
	if err := process.Verify(site, &p); err == nil {
		t.Error("expected error for unary node with two inputs")
	}
}

func TestVerifyRejectsBadParams(t *testing.T) {
	site := testSite(t)
	node := api.NewFunctionCall("dfm.api.dfm.GreetMe")
	node.Params = json.RawMessage(`{"names":"typo"}`)
	p := api.Pipeline{Nodes: []api.FunctionCall{node}}
	if err := process.Verify(site, &p); err == nil {
		t.Error("expected error for unknown param field")
	}
}

func TestVerifyRejectsInternalClass(t *testing.T) {
	site := testSite(t)
	node := api.NewFunctionCall("dfm.api.dfm.PushResponse")
	p := api.Pipeline{Nodes: []api.FunctionCall{node}}
	if err := process.Verify(site, &p); err == nil {
		t.Error("expected error for internal api_class")
	}
}

func TestOptimizeDeduplicates(t *testing.T) {
	a := constantNode("7", false)
	b := constantNode("7", false)
	avg := api.NewFunctionCall("dfm.api.xarray.AveragePointwise")
	avg.Inputs = []uuid.UUID{a.NodeID, b.NodeID}
	p := api.Pipeline{Nodes: []api.FunctionCall{a, b, avg}}

	optimized, _, err := process.Optimize(&p)
	if err != nil {
		t.Fatal(err)
	}
	if len(optimized.Nodes) != 2 {
		t.Fatalf("expected duplicate collapsed, got %d nodes", len(optimized.Nodes))
	}
	rewritten := optimized.Node(avg.NodeID)
	if rewritten.Inputs[0] != a.NodeID || rewritten.Inputs[1] != a.NodeID {
		t.Errorf("expected consumer fanned onto survivor, got %v", rewritten.Inputs)
	}
}

func TestOptimizeKeepsOutputDuplicates(t *testing.T) {
	a := constantNode("7", true)
	b := constantNode("7", true)
	p := api.Pipeline{Nodes: []api.FunctionCall{a, b}}

	optimized, _, err := process.Optimize(&p)
	if err != nil {
		t.Fatal(err)
	}
	if len(optimized.Nodes) != 2 {
		t.Errorf("output nodes must not collapse, got %d nodes", len(optimized.Nodes))
	}
}

func TestOptimizeMarksFoldableConstants(t *testing.T) {
	hidden := constantNode("1", false)
	visible := constantNode("2", true)
	norm := api.NewFunctionCall("dfm.api.xarray.VariableNorm")
	norm.Inputs = []uuid.UUID{hidden.NodeID}
	p := api.Pipeline{Nodes: []api.FunctionCall{hidden, visible, norm}}

	_, folded, err := process.Optimize(&p)
	if err != nil {
		t.Fatal(err)
	}
	if len(folded) != 1 || folded[0] != hidden.NodeID {
		t.Errorf("expected only the non-output constant folded, got %v", folded)
	}
}

func TestSubmitEnqueuesInitialReadySet(t *testing.T) {
	svc, client := testService(t)
	ctx := context.Background()

	root := api.NewFunctionCall("dfm.api.dfm.GreetMe")
	root.Params = json.RawMessage(`{"name":"World"}`)
	root.IsOutput = true
	signal := api.NewFunctionCall("dfm.api.dfm.SignalClient")
	signal.Params = json.RawMessage(`{"message":"ok"}`)
	signal.After = []uuid.UUID{root.NodeID}

	requestID, err := svc.Submit(ctx, api.Pipeline{Nodes: []api.FunctionCall{root, signal}})
	if err != nil {
		t.Fatal(err)
	}

	req, err := client.LoadRequest(ctx, requestID)
	if err != nil {
		t.Fatal(err)
	}
	if req.NodeState[root.NodeID] != api.StateReady {
		t.Errorf("root should be READY, got %s", req.NodeState[root.NodeID])
	}
	if req.NodeState[signal.NodeID] != api.StatePending {
		t.Errorf("signal should stay PENDING, got %s", req.NodeState[signal.NodeID])
	}

	item, ok, err := client.PopWork(ctx, time.Second, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected enqueued work: %v ok=%v", err, ok)
	}
	if item.NodeID != root.NodeID {
		t.Errorf("expected root enqueued, got %s", item.NodeID)
	}

	responses, _ := client.PopResponses(ctx, requestID, 10, time.Second)
	if len(responses) != 1 || responses[0].State != api.StateReady {
		t.Errorf("expected one READY status, got %+v", responses)
	}
}

func TestSubmitFoldsConstants(t *testing.T) {
	svc, client := testService(t)
	ctx := context.Background()

	hidden := constantNode("[3,4]", false)
	norm := api.NewFunctionCall("dfm.api.xarray.VariableNorm")
	norm.Inputs = []uuid.UUID{hidden.NodeID}
	norm.IsOutput = true

	requestID, err := svc.Submit(ctx, api.Pipeline{Nodes: []api.FunctionCall{hidden, norm}})
	if err != nil {
		t.Fatal(err)
	}

	req, err := client.LoadRequest(ctx, requestID)
	if err != nil {
		t.Fatal(err)
	}
	if req.NodeState[hidden.NodeID] != api.StateCompleted {
		t.Errorf("folded constant should be COMPLETED, got %s", req.NodeState[hidden.NodeID])
	}
	if req.NodeState[norm.NodeID] != api.StateReady {
		t.Errorf("consumer should be READY, got %s", req.NodeState[norm.NodeID])
	}

	// the literal landed in the consumer's input buffer, followed by eof
	value, eof, err := client.PopInput(ctx, requestID, norm.NodeID, 0, time.Second)
	if err != nil || eof {
		t.Fatalf("expected folded value: %v eof=%v", err, eof)
	}
	if string(value) != "[3,4]" {
		t.Errorf("unexpected folded value %s", value)
	}
	_, eof, err = client.PopInput(ctx, requestID, norm.NodeID, 0, time.Second)
	if err != nil || !eof {
		t.Errorf("expected closed input: %v eof=%v", err, eof)
	}
}

func TestSubmitRejectsBadPipeline(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.Submit(context.Background(), api.Pipeline{})
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Kind != apperrors.KindBadPipeline {
		t.Errorf("expected BAD_PIPELINE, got %v", err)
	}
}

func TestResponsesNoSuchRequest(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.Responses(context.Background(), uuid.New(), 10, 50*time.Millisecond)
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Kind != apperrors.KindNoSuchRequest {
		t.Errorf("expected NO_SUCH_REQUEST, got %v", err)
	}
}

func TestCancelIdempotent(t *testing.T) {
	svc, client := testService(t)
	ctx := context.Background()

	node := constantNode("1", true)
	requestID, err := svc.Submit(ctx, api.Pipeline{Nodes: []api.FunctionCall{node}})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := svc.Cancel(ctx, requestID); err != nil {
			t.Fatalf("cancel %d failed: %v", i, err)
		}
	}

	req, _ := client.LoadRequest(ctx, requestID)
	if !req.Cancelled {
		t.Error("expected cancelled flag set")
	}

	if err := svc.Cancel(ctx, uuid.New()); err == nil {
		t.Error("expected NO_SUCH_REQUEST for unknown id")
	}
}
