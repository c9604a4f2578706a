package execute

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/execute/adapter"
)

// brokerInputs streams a node's upstream values out of the broker input
// buffers. Each pop blocks in short slices so context cancellation is
// observed promptly.
type brokerInputs struct {
	client    *broker.Client
	requestID uuid.UUID
	nodeID    uuid.UUID
	ports     int
	poll      time.Duration
}

var _ adapter.Inputs = (*brokerInputs)(nil)

func newBrokerInputs(client *broker.Client, requestID, nodeID uuid.UUID, ports int) *brokerInputs {
	return &brokerInputs{
		client:    client,
		requestID: requestID,
		nodeID:    nodeID,
		ports:     ports,
		poll:      time.Second,
	}
}

func (in *brokerInputs) Ports() int { return in.ports }

func (in *brokerInputs) Next(ctx context.Context, port int) (json.RawMessage, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		value, eof, err := in.client.PopInput(ctx, in.requestID, in.nodeID, port, in.poll)
		if err != nil {
			if errors.Is(err, broker.ErrInputTimeout) {
				continue
			}
			return nil, false, err
		}
		return value, eof, nil
	}
}
