package execute

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/execute/adapter"
)

// nodeRuntime is the adapter.Runtime handed to one node activation.
type nodeRuntime struct {
	client       *broker.Client
	site         string
	requestID    uuid.UUID
	nodeID       uuid.UUID
	continuation []byte
}

var _ adapter.Runtime = (*nodeRuntime)(nil)

func newNodeRuntime(client *broker.Client, site string, requestID, nodeID uuid.UUID, continuation []byte) *nodeRuntime {
	return &nodeRuntime{
		client:       client,
		site:         site,
		requestID:    requestID,
		nodeID:       nodeID,
		continuation: continuation,
	}
}

func (r *nodeRuntime) RequestID() uuid.UUID { return r.requestID }
func (r *nodeRuntime) NodeID() uuid.UUID    { return r.nodeID }
func (r *nodeRuntime) Site() string         { return r.site }

// ScheduleAfter persists the continuation and pushes a fresh activation
// onto the delayed queue. The worker releases on ErrSuspended; the
// scheduler re-enqueues at the activation time.
func (r *nodeRuntime) ScheduleAfter(ctx context.Context, d time.Duration, continuation []byte) error {
	if err := r.client.SetContinuation(ctx, r.requestID, r.nodeID, continuation); err != nil {
		return err
	}
	item := broker.WorkItem{RequestID: r.requestID, NodeID: r.nodeID}
	return r.client.ScheduleDelayed(ctx, item, time.Now().Add(d))
}

func (r *nodeRuntime) Continuation() []byte { return r.continuation }

func (r *nodeRuntime) SendMessage(ctx context.Context, mailbox, message string) error {
	return r.client.SetMessage(ctx, r.requestID, mailbox, message)
}

func (r *nodeRuntime) GetMessage(ctx context.Context, mailbox string) (string, bool, error) {
	return r.client.GetMessage(ctx, r.requestID, mailbox)
}

func (r *nodeRuntime) PushResponse(ctx context.Context, resp api.Response) error {
	return r.client.PushResponse(ctx, resp)
}
