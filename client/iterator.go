package client

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
)

// IteratorOptions configure a response iterator.
type IteratorOptions struct {
	// StopNodeIDs terminate the iterator once every listed node emitted a
	// terminal status or error.
	StopNodeIDs []uuid.UUID
	// ReturnStatuses includes status envelopes in the yielded stream.
	ReturnStatuses bool
	// ReturnHeartbeats includes heartbeat envelopes in the yielded stream.
	ReturnHeartbeats bool
	// PageSize caps how many responses one poll drains.
	PageSize int
	// PollTimeout is the server-side blocking window per poll.
	PollTimeout time.Duration
	// Sleep is called between empty polls; overridable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// EmptyPollDelay is the backoff between empty polls.
	EmptyPollDelay time.Duration
}

func (o *IteratorOptions) applyDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = 16
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 2 * time.Second
	}
	if o.EmptyPollDelay <= 0 {
		o.EmptyPollDelay = 200 * time.Millisecond
	}
	if o.Sleep == nil {
		o.Sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
}

// ResponseIterator streams a request's responses in arrival order.
type ResponseIterator struct {
	client    *Client
	requestID uuid.UUID
	opts      IteratorOptions

	hasStops   bool
	pending    map[uuid.UUID]bool
	buffered   []api.Response
	terminated bool
}

// Responses returns an iterator over the request's response stream.
func (c *Client) Responses(requestID uuid.UUID, opts IteratorOptions) *ResponseIterator {
	opts.applyDefaults()
	pending := make(map[uuid.UUID]bool, len(opts.StopNodeIDs))
	for _, id := range opts.StopNodeIDs {
		pending[id] = true
	}
	return &ResponseIterator{
		client:    c,
		requestID: requestID,
		opts:      opts,
		hasStops:  len(pending) > 0,
		pending:   pending,
	}
}

// Next yields the next response. ok is false once the iterator terminated:
// every stop node reached a terminal state, or ctx ended.
func (it *ResponseIterator) Next(ctx context.Context) (api.Response, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return api.Response{}, false, err
		}

		if len(it.buffered) == 0 {
			if it.terminated {
				return api.Response{}, false, nil
			}
			batch, err := it.client.PollResponses(ctx, it.requestID, it.opts.PageSize, it.opts.PollTimeout)
			if err != nil {
				return api.Response{}, false, err
			}
			if len(batch) == 0 {
				if err := it.opts.Sleep(ctx, it.opts.EmptyPollDelay); err != nil {
					return api.Response{}, false, err
				}
				continue
			}
			it.buffered = batch
		}

		resp := it.buffered[0]
		it.buffered = it.buffered[1:]

		it.observeTermination(resp)

		switch resp.Kind {
		case api.KindStatus:
			if !it.opts.ReturnStatuses {
				continue
			}
		case api.KindHeartbeat:
			if !it.opts.ReturnHeartbeats {
				continue
			}
		}
		return resp, true, nil
	}
}

// Collect drains the iterator until termination and returns everything it
// yielded.
func (it *ResponseIterator) Collect(ctx context.Context) ([]api.Response, error) {
	var out []api.Response
	for {
		resp, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, resp)
	}
}

// observeTermination retires stop nodes on their terminal envelopes. The
// iterator keeps draining its buffer after the last one so already-fetched
// responses are not lost, then stops.
func (it *ResponseIterator) observeTermination(resp api.Response) {
	if !it.hasStops || it.terminated || resp.NodeID == nil {
		return
	}
	if !it.pending[*resp.NodeID] {
		return
	}
	if resp.IsTerminalFor(*resp.NodeID) {
		delete(it.pending, *resp.NodeID)
		if len(it.pending) == 0 {
			it.terminated = true
		}
	}
}
