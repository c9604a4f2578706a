package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nimbusworks/dfm/api"
)

// signalAdapter sends a literal message once its `after` predecessors have
// reached a terminal state. The ordering itself is enforced by the
// executor's readiness rules; by the time the body runs, the predecessors
// are done. Backs both SignalClient and SignalAllDone.
type signalAdapter struct {
	params *api.SignalParams
}

func newSignal(deps Deps) (Adapter, error) {
	params, ok := deps.Params.(*api.SignalParams)
	if !ok {
		return nil, fmt.Errorf("signal adapter: unexpected params type %T", deps.Params)
	}
	return &signalAdapter{params: params}, nil
}

func (a *signalAdapter) Body(ctx context.Context, emit Emit) error {
	message := a.params.Message
	if message == "" {
		message = "Sig"
	}
	value, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return emit(ctx, value)
}

func init() {
	Register("signal", newSignal)
}
