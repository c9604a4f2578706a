package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/errors"
)

// sendMessageAdapter delivers each upstream value into a named per-request
// mailbox. Values that are JSON strings are unquoted; everything else is
// stored verbatim.
type sendMessageAdapter struct {
	rt     Runtime
	inputs Inputs
	params *api.SendMessageParams
}

func newSendMessage(deps Deps) (Adapter, error) {
	params, ok := deps.Params.(*api.SendMessageParams)
	if !ok {
		return nil, fmt.Errorf("sendmessage adapter: unexpected params type %T", deps.Params)
	}
	return &sendMessageAdapter{rt: deps.Runtime, inputs: deps.Inputs, params: params}, nil
}

func (a *sendMessageAdapter) Body(ctx context.Context, emit Emit) error {
	for {
		value, eof, err := a.inputs.Next(ctx, 0)
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
		message := string(value)
		var unquoted string
		if err := json.Unmarshal(value, &unquoted); err == nil {
			message = unquoted
		}
		if err := a.rt.SendMessage(ctx, a.params.Mailbox, message); err != nil {
			return err
		}
	}
}

// awaitMessageContinuation is the opaque state persisted between
// activations of an awaitMessageAdapter.
type awaitMessageContinuation struct {
	WaitCount int `json:"wait_count"`
}

// awaitMessageAdapter polls a mailbox and yields the message once it
// arrives. While the mailbox is empty it reschedules itself through the
// delayed queue instead of holding a worker.
type awaitMessageAdapter struct {
	rt       Runtime
	params   *api.AwaitMessageParams
	maxWaits int
}

func newAwaitMessage(deps Deps) (Adapter, error) {
	params, ok := deps.Params.(*api.AwaitMessageParams)
	if !ok {
		return nil, fmt.Errorf("awaitmessage adapter: unexpected params type %T", deps.Params)
	}
	maxWaits := params.MaxWaits
	if maxWaits <= 0 {
		maxWaits = cfgInt(deps.Config, "max_waits", 600)
	}
	return &awaitMessageAdapter{rt: deps.Runtime, params: params, maxWaits: maxWaits}, nil
}

func (a *awaitMessageAdapter) Body(ctx context.Context, emit Emit) error {
	message, ok, err := a.rt.GetMessage(ctx, a.params.Mailbox)
	if err != nil {
		return err
	}
	if ok {
		value, err := json.Marshal(message)
		if err != nil {
			return err
		}
		return emit(ctx, value)
	}

	var cont awaitMessageContinuation
	if blob := a.rt.Continuation(); blob != nil {
		if err := json.Unmarshal(blob, &cont); err != nil {
			return fmt.Errorf("awaitmessage adapter: corrupt continuation: %w", err)
		}
	}
	cont.WaitCount++
	if cont.WaitCount > a.maxWaits {
		return errors.AdapterBadInput(fmt.Sprintf(
			"no message arrived in mailbox %q after %d checks", a.params.Mailbox, a.maxWaits))
	}

	sleep := time.Duration(a.params.SleepSeconds * float64(time.Second))
	if sleep <= 0 {
		sleep = time.Second
	}
	blob, err := json.Marshal(cont)
	if err != nil {
		return err
	}
	if err := a.rt.ScheduleAfter(ctx, sleep, blob); err != nil {
		return err
	}
	return ErrSuspended
}

func init() {
	Register("sendmessage", newSendMessage)
	Register("awaitmessage", newAwaitMessage)
}
