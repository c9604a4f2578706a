package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	apperrors "github.com/nimbusworks/dfm/errors"
)

// fakeRuntime implements Runtime in memory.
type fakeRuntime struct {
	requestID    uuid.UUID
	nodeID       uuid.UUID
	mailboxes    map[string]string
	continuation []byte
	scheduled    []time.Duration
	responses    []api.Response
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		requestID: uuid.New(),
		nodeID:    uuid.New(),
		mailboxes: make(map[string]string),
	}
}

func (f *fakeRuntime) RequestID() uuid.UUID { return f.requestID }
func (f *fakeRuntime) NodeID() uuid.UUID    { return f.nodeID }
func (f *fakeRuntime) Site() string         { return "local" }

func (f *fakeRuntime) ScheduleAfter(ctx context.Context, d time.Duration, continuation []byte) error {
	f.scheduled = append(f.scheduled, d)
	f.continuation = continuation
	return nil
}

func (f *fakeRuntime) Continuation() []byte { return f.continuation }

func (f *fakeRuntime) SendMessage(ctx context.Context, mailbox, message string) error {
	f.mailboxes[mailbox] = message
	return nil
}

func (f *fakeRuntime) GetMessage(ctx context.Context, mailbox string) (string, bool, error) {
	msg, ok := f.mailboxes[mailbox]
	return msg, ok, nil
}

func (f *fakeRuntime) PushResponse(ctx context.Context, resp api.Response) error {
	f.responses = append(f.responses, resp)
	return nil
}

// fakeInputs serves pre-canned streams, one slice per port.
type fakeInputs struct {
	streams [][]json.RawMessage
	pos     []int
}

func newFakeInputs(streams ...[]json.RawMessage) *fakeInputs {
	return &fakeInputs{streams: streams, pos: make([]int, len(streams))}
}

func (f *fakeInputs) Ports() int { return len(f.streams) }

func (f *fakeInputs) Next(ctx context.Context, port int) (json.RawMessage, bool, error) {
	if f.pos[port] >= len(f.streams[port]) {
		return nil, true, nil
	}
	value := f.streams[port][f.pos[port]]
	f.pos[port]++
	return value, false, nil
}

func collect(t *testing.T, a Adapter) []string {
	t.Helper()
	var out []string
	err := a.Body(context.Background(), func(ctx context.Context, value json.RawMessage) error {
		out = append(out, string(value))
		return nil
	})
	if err != nil {
		t.Fatalf("body failed: %v", err)
	}
	return out
}

func TestConstantAdapter(t *testing.T) {
	a, err := newConstant(Deps{Params: &api.ConstantParams{Value: json.RawMessage(`42`)}})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	if len(out) != 1 || out[0] != "42" {
		t.Errorf("unexpected output %v", out)
	}
}

func TestGreetMeAdapter(t *testing.T) {
	a, err := newGreetMe(Deps{
		Config: map[string]any{"greeting": "Ahoy"},
		Params: &api.GreetMeParams{Name: "World"},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	if len(out) != 1 || out[0] != `"Ahoy World"` {
		t.Errorf("unexpected output %v", out)
	}
}

func TestSignalAdapterDefaultMessage(t *testing.T) {
	a, err := newSignal(Deps{Params: &api.SignalParams{}})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	if len(out) != 1 || out[0] != `"Sig"` {
		t.Errorf("unexpected output %v", out)
	}
}

func TestSendMessageAdapter(t *testing.T) {
	rt := newFakeRuntime()
	inputs := newFakeInputs([]json.RawMessage{json.RawMessage(`"first"`), json.RawMessage(`"second"`)})
	a, err := newSendMessage(Deps{
		Runtime: rt,
		Inputs:  inputs,
		Params:  &api.SendMessageParams{Mailbox: "render"},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	if len(out) != 0 {
		t.Errorf("sendmessage must not emit, got %v", out)
	}
	if rt.mailboxes["render"] != "second" {
		t.Errorf("expected last value in mailbox, got %q", rt.mailboxes["render"])
	}
}

func TestAwaitMessageDelivers(t *testing.T) {
	rt := newFakeRuntime()
	rt.mailboxes["render"] = "done"
	a, err := newAwaitMessage(Deps{Runtime: rt, Params: &api.AwaitMessageParams{Mailbox: "render"}})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	if len(out) != 1 || out[0] != `"done"` {
		t.Errorf("unexpected output %v", out)
	}
	if len(rt.scheduled) != 0 {
		t.Error("must not reschedule when the message is present")
	}
}

func TestAwaitMessageSuspends(t *testing.T) {
	rt := newFakeRuntime()
	a, err := newAwaitMessage(Deps{Runtime: rt, Params: &api.AwaitMessageParams{
		Mailbox: "render", SleepSeconds: 2,
	}})
	if err != nil {
		t.Fatal(err)
	}
	err = a.Body(context.Background(), func(ctx context.Context, value json.RawMessage) error {
		t.Fatal("must not emit")
		return nil
	})
	if !errors.Is(err, ErrSuspended) {
		t.Fatalf("expected ErrSuspended, got %v", err)
	}
	if len(rt.scheduled) != 1 || rt.scheduled[0] != 2*time.Second {
		t.Errorf("unexpected schedule %v", rt.scheduled)
	}

	var cont awaitMessageContinuation
	if err := json.Unmarshal(rt.continuation, &cont); err != nil {
		t.Fatal(err)
	}
	if cont.WaitCount != 1 {
		t.Errorf("expected wait_count 1, got %d", cont.WaitCount)
	}
}

func TestAwaitMessageGivesUp(t *testing.T) {
	rt := newFakeRuntime()
	rt.continuation = []byte(`{"wait_count":3}`)
	a, err := newAwaitMessage(Deps{Runtime: rt, Params: &api.AwaitMessageParams{
		Mailbox: "render", MaxWaits: 3,
	}})
	if err != nil {
		t.Fatal(err)
	}
	err = a.Body(context.Background(), func(ctx context.Context, value json.RawMessage) error { return nil })
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Kind != apperrors.KindAdapterBadInput {
		t.Errorf("expected ADAPTER_BAD_INPUT after max waits, got %v", err)
	}
}

func TestEra5LoaderAdapter(t *testing.T) {
	a, err := newEra5Loader(Deps{
		Provider: &Provider{Name: "dfm"},
		Config:   map[string]any{"frame_count": 2, "frame_delay": "1ms"},
		Params:   &api.LoadEra5ModelDataParams{Time: "2024-01-01T00:00", Variables: []string{"t2m", "u10m"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	if len(out) != 4 {
		t.Fatalf("expected 2 frames x 2 variables, got %d", len(out))
	}
	var frame era5Frame
	if err := json.Unmarshal([]byte(out[0]), &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Time != "2024-01-01T00:00" || frame.Variable != "t2m" {
		t.Errorf("unexpected frame %+v", frame)
	}
	if len(frame.Data) == 0 {
		t.Error("expected inline frame data")
	}
}

func TestEra5LoaderRejectsBadTime(t *testing.T) {
	_, err := newEra5Loader(Deps{
		Provider: &Provider{Name: "dfm"},
		Params:   &api.LoadEra5ModelDataParams{Time: "yesterday"},
	})
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Kind != apperrors.KindAdapterBadInput {
		t.Errorf("expected ADAPTER_BAD_INPUT, got %v", err)
	}
}

func TestVariableNormAdapter(t *testing.T) {
	inputs := newFakeInputs([]json.RawMessage{
		json.RawMessage(`[3,4]`),
		json.RawMessage(`5`),
	})
	a, err := newVariableNorm(Deps{Inputs: inputs, Params: &api.VariableNormParams{}})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	if len(out) != 2 || out[0] != "5" || out[1] != "5" {
		t.Errorf("unexpected norms %v", out)
	}
}

func TestAveragePointwiseAdapter(t *testing.T) {
	inputs := newFakeInputs(
		[]json.RawMessage{json.RawMessage(`[1,2]`), json.RawMessage(`[10,20]`)},
		[]json.RawMessage{json.RawMessage(`[3,4]`)},
	)
	a, err := newAveragePointwise(Deps{Inputs: inputs, Params: &api.AveragePointwiseParams{}})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	// the second port closes after one frame, so only one average is emitted
	if len(out) != 1 || out[0] != "[2,3]" {
		t.Errorf("unexpected output %v", out)
	}
}

func TestAveragePointwiseWidthMismatch(t *testing.T) {
	inputs := newFakeInputs(
		[]json.RawMessage{json.RawMessage(`[1,2]`)},
		[]json.RawMessage{json.RawMessage(`[3]`)},
	)
	a, _ := newAveragePointwise(Deps{Inputs: inputs, Params: &api.AveragePointwiseParams{}})
	err := a.Body(context.Background(), func(ctx context.Context, value json.RawMessage) error { return nil })
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Kind != apperrors.KindAdapterBadInput {
		t.Errorf("expected ADAPTER_BAD_INPUT, got %v", err)
	}
}

func TestZip2Adapter(t *testing.T) {
	inputs := newFakeInputs(
		[]json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`), json.RawMessage(`3`)},
		[]json.RawMessage{json.RawMessage(`"a"`), json.RawMessage(`"b"`)},
	)
	a, err := newZip2(Deps{Inputs: inputs, Params: &api.Zip2Params{}})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	if len(out) != 2 || out[0] != `[1,"a"]` || out[1] != `[2,"b"]` {
		t.Errorf("unexpected output %v", out)
	}
}

func TestPushResponseAdapter(t *testing.T) {
	rt := newFakeRuntime()
	resp := api.NewStatusResponse(rt.requestID, rt.nodeID, "local", api.StateCompleted, "late status")
	a, err := newPushResponse(Deps{Runtime: rt, Params: &api.PushResponseParams{Response: resp}})
	if err != nil {
		t.Fatal(err)
	}
	out := collect(t, a)
	if len(out) != 0 {
		t.Errorf("pushresponse must not emit, got %v", out)
	}
	if len(rt.responses) != 1 || rt.responses[0].Message != "late status" {
		t.Errorf("unexpected responses %v", rt.responses)
	}
}

func TestRegistryNames(t *testing.T) {
	names := Names()
	want := []string{"averagepointwise", "awaitmessage", "constant", "era5loader",
		"greetme", "pushresponse", "sendmessage", "signal", "variablenorm", "zip2"}
	if len(names) != len(want) {
		t.Fatalf("expected %d adapters, got %d: %v", len(want), len(names), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("expected %s at %d, got %s", name, i, names[i])
		}
	}
}
