package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/google/uuid"
)

// inputFrame wraps one element of an input buffer. EOF marks the upstream
// stream as closed; no values follow it.
type inputFrame struct {
	Value json.RawMessage `json:"value,omitempty"`
	EOF   bool            `json:"eof,omitempty"`
}

// PushInput delivers one upstream value to a node's input port.
func (c *Client) PushInput(ctx context.Context, requestID, nodeID uuid.UUID, port int, value json.RawMessage) error {
	payload, err := json.Marshal(inputFrame{Value: value})
	if err != nil {
		return fmt.Errorf("broker push input: %w", err)
	}
	if err := c.rdb.RPush(ctx, InputKey(requestID, nodeID, port), payload).Err(); err != nil {
		return fmt.Errorf("broker push input: %w", err)
	}
	return nil
}

// CloseInput marks a node's input port as exhausted.
func (c *Client) CloseInput(ctx context.Context, requestID, nodeID uuid.UUID, port int) error {
	payload, err := json.Marshal(inputFrame{EOF: true})
	if err != nil {
		return fmt.Errorf("broker close input: %w", err)
	}
	if err := c.rdb.RPush(ctx, InputKey(requestID, nodeID, port), payload).Err(); err != nil {
		return fmt.Errorf("broker close input: %w", err)
	}
	return nil
}

// PopInput blocks up to timeout for the next value on an input port.
// Returns (value, false, nil) for a value, (nil, true, nil) at end of
// stream, and goredis.Nil-mapped timeout as ErrInputTimeout.
func (c *Client) PopInput(ctx context.Context, requestID, nodeID uuid.UUID, port int, timeout time.Duration) (json.RawMessage, bool, error) {
	res, err := c.rdb.BLPop(ctx, timeout, InputKey(requestID, nodeID, port)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, ErrInputTimeout
		}
		return nil, false, fmt.Errorf("broker pop input: %w", err)
	}
	var frame inputFrame
	if err := json.Unmarshal([]byte(res[1]), &frame); err != nil {
		return nil, false, fmt.Errorf("broker pop input: %w", err)
	}
	if frame.EOF {
		return nil, true, nil
	}
	return frame.Value, false, nil
}

// DropInputs removes a node's input buffers after it reached a terminal
// state.
func (c *Client) DropInputs(ctx context.Context, requestID, nodeID uuid.UUID, ports int) error {
	if ports == 0 {
		return nil
	}
	keys := make([]string, ports)
	for port := 0; port < ports; port++ {
		keys[port] = InputKey(requestID, nodeID, port)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("broker drop inputs: %w", err)
	}
	return nil
}

// ErrInputTimeout is returned when an input pop timed out with the stream
// still open.
var ErrInputTimeout = errors.New("input pop timed out")
