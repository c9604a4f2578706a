package execute_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/broker/testutil"
	"github.com/nimbusworks/dfm/execute"
)

func chainPipeline() (api.Pipeline, []uuid.UUID) {
	a := api.NewFunctionCall("dfm.api.test.EmitFive")
	b := api.NewFunctionCall("dfm.api.test.Square")
	b.Inputs = []uuid.UUID{a.NodeID}
	c := api.NewFunctionCall("dfm.api.test.Square")
	c.Inputs = []uuid.UUID{b.NodeID}
	d := api.NewFunctionCall("dfm.api.dfm.SignalClient")
	d.After = []uuid.UUID{c.NodeID}
	e := api.NewFunctionCall("dfm.api.test.EmitFive")

	p := api.Pipeline{Nodes: []api.FunctionCall{a, b, c, d, e}}
	return p, []uuid.UUID{a.NodeID, b.NodeID, c.NodeID, d.NodeID, e.NodeID}
}

func TestTransitiveDependents(t *testing.T) {
	p, ids := chainPipeline()
	a, b, c, d, e := ids[0], ids[1], ids[2], ids[3], ids[4]

	deps := execute.TransitiveDependents(&p, a)
	want := map[uuid.UUID]bool{b: true, c: true, d: true}
	if len(deps) != len(want) {
		t.Fatalf("expected %d dependents, got %v", len(want), deps)
	}
	for _, id := range deps {
		if !want[id] {
			t.Errorf("unexpected dependent %s", id)
		}
		if id == e {
			t.Error("sibling subgraph must not be reached")
		}
	}

	if got := execute.TransitiveDependents(&p, d); len(got) != 0 {
		t.Errorf("leaf has no dependents, got %v", got)
	}
}

func saveRequest(t *testing.T, client *broker.Client, p api.Pipeline) *api.Request {
	t.Helper()
	req := api.NewRequest(uuid.New(), p, time.Now().UTC())
	if err := client.SaveRequest(context.Background(), req, 0); err != nil {
		t.Fatal(err)
	}
	return req
}

func TestTryMarkReadyAfterGate(t *testing.T) {
	client, _ := testutil.NewBroker(t)
	ctx := context.Background()

	p, ids := chainPipeline()
	c, d := ids[2], ids[3]
	req := saveRequest(t, client, p)

	// d is gated on c being terminal
	ready, err := execute.TryMarkReady(ctx, client, "local", req.RequestID, d, false)
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Error("after-gated node must not ready before its predecessor is terminal")
	}

	client.UpdateRequest(ctx, req.RequestID, func(r *api.Request) error {
		r.NodeState[c] = api.StateCompleted
		return nil
	})

	ready, err = execute.TryMarkReady(ctx, client, "local", req.RequestID, d, false)
	if err != nil || !ready {
		t.Fatalf("expected ready transition: %v ready=%v", err, ready)
	}

	// second attempt is a no-op: the node already left PENDING
	ready, err = execute.TryMarkReady(ctx, client, "local", req.RequestID, d, false)
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Error("ready transition must happen exactly once")
	}

	// exactly one item was enqueued
	if n, _ := client.QueueLen(ctx); n != 1 {
		t.Errorf("expected 1 enqueued item, got %d", n)
	}
}

func TestTryMarkReadyUnaryHint(t *testing.T) {
	client, _ := testutil.NewBroker(t)
	ctx := context.Background()

	p, ids := chainPipeline()
	b := ids[1]
	req := saveRequest(t, client, p)

	// without a first value, a unary consumer of a live upstream stays put
	ready, err := execute.TryMarkReady(ctx, client, "local", req.RequestID, b, false)
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Error("unary consumer must wait for a first value")
	}

	ready, err = execute.TryMarkReady(ctx, client, "local", req.RequestID, b, true)
	if err != nil || !ready {
		t.Fatalf("first-value hint must ready the consumer: %v ready=%v", err, ready)
	}
}

func TestTryMarkReadyCancelledRequest(t *testing.T) {
	client, _ := testutil.NewBroker(t)
	ctx := context.Background()

	p, ids := chainPipeline()
	req := saveRequest(t, client, p)
	client.UpdateRequest(ctx, req.RequestID, func(r *api.Request) error {
		r.Cancelled = true
		return nil
	})

	ready, err := execute.TryMarkReady(ctx, client, "local", req.RequestID, ids[0], false)
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Error("cancelled requests must not enqueue work")
	}
}

func TestNotBeforeGoesToDelayedQueue(t *testing.T) {
	client, _ := testutil.NewBroker(t)
	ctx := context.Background()

	node := api.NewFunctionCall("dfm.api.test.EmitFive")
	notBefore := time.Now().Add(time.Hour)
	node.NotBefore = &notBefore
	req := saveRequest(t, client, api.Pipeline{Nodes: []api.FunctionCall{node}})

	ready, err := execute.TryMarkReady(ctx, client, "local", req.RequestID, node.NodeID, false)
	if err != nil || !ready {
		t.Fatalf("expected ready transition: %v ready=%v", err, ready)
	}

	if n, _ := client.QueueLen(ctx); n != 0 {
		t.Errorf("future node must not land on the exec queue, got %d", n)
	}
	item, ok, err := client.PeekDelayed(ctx)
	if err != nil || !ok {
		t.Fatalf("expected delayed entry: %v ok=%v", err, ok)
	}
	if item.NodeID != node.NodeID {
		t.Errorf("unexpected delayed item %+v", item)
	}
}

func TestJSONRoundTripRequestRecord(t *testing.T) {
	p, _ := chainPipeline()
	req := api.NewRequest(uuid.New(), p, time.Now().UTC())
	req.Fingerprints[p.Nodes[0].NodeID] = "abc"

	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	var decoded api.Request
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Fingerprints[p.Nodes[0].NodeID] != "abc" {
		t.Error("fingerprints must survive the round trip")
	}
	if len(decoded.NodeState) != len(req.NodeState) {
		t.Error("node state must survive the round trip")
	}
}
