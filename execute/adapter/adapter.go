// Package adapter defines the extension seam of the execution service: the
// Adapter contract, the implementation registry, and the built-in adapters.
//
// An adapter is instantiated per node activation and owns a cooperative
// producer Body that yields zero or more values through an Emit sink. The
// executor persists emitted values into the cache, routes them to the
// client response queue for output nodes, and feeds them to downstream
// input buffers.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/cache"
)

// ErrSuspended is returned from Body after ScheduleAfter to release the
// worker without completing the node. The scheduler re-enqueues the node at
// its activation time and the executor reconstructs the adapter with the
// persisted continuation.
var ErrSuspended = errors.New("adapter suspended until rescheduled")

// Emit is the sink for values produced by an adapter body. Values must be
// valid JSON.
type Emit func(ctx context.Context, value json.RawMessage) error

// Runtime is the per-activation handle the executor exposes to adapters:
// identity, follow-up scheduling, mailboxes, and direct response access.
type Runtime interface {
	// RequestID identifies the request this activation belongs to.
	RequestID() uuid.UUID
	// NodeID identifies the node being executed.
	NodeID() uuid.UUID
	// Site is the executing site's name.
	Site() string

	// ScheduleAfter arranges re-activation of this node after d, persisting
	// an adapter-owned continuation blob. The body should return
	// ErrSuspended right after.
	ScheduleAfter(ctx context.Context, d time.Duration, continuation []byte) error
	// Continuation returns the blob persisted by a previous activation, or
	// nil on the first run.
	Continuation() []byte

	// SendMessage writes a value into a per-request mailbox.
	SendMessage(ctx context.Context, mailbox, message string) error
	// GetMessage reads a mailbox; the bool reports presence.
	GetMessage(ctx context.Context, mailbox string) (string, bool, error)

	// PushResponse appends a pre-built envelope to the request's response
	// queue, bypassing the value plane.
	PushResponse(ctx context.Context, resp api.Response) error
}

// Inputs gives an adapter pull access to its upstream value streams, one
// port per declared input, in declaration order.
type Inputs interface {
	// Ports returns the number of input ports.
	Ports() int
	// Next blocks for the next value on a port. eof is true once the
	// upstream stream closed; no values follow.
	Next(ctx context.Context, port int) (value json.RawMessage, eof bool, err error)
}

// Adapter is a runtime object executing one node. Body is the only
// operation: a cooperative producer that may await external I/O freely.
// Side effects should be idempotent; a node may be retried.
type Adapter interface {
	Body(ctx context.Context, emit Emit) error
}

// Provider is the resolved configuration namespace an adapter runs under.
type Provider struct {
	// Name is the provider key from the site configuration.
	Name string
	// Description is shown by discovery.
	Description string
	// Blob is where adapters materialize large outputs; nil if the provider
	// configures none.
	Blob cache.BlobStore
}

// Deps carries everything an adapter factory needs to build an instance.
type Deps struct {
	Runtime  Runtime
	Provider *Provider
	// Config is the adapter's static configuration from the site YAML.
	Config map[string]any
	// Params is the node's decoded param record (see api.DecodeParams).
	Params any
	// Inputs streams the upstream values; Ports() == 0 for nullary nodes.
	Inputs Inputs
}

// Factory constructs an adapter instance for one node activation.
type Factory func(deps Deps) (Adapter, error)
