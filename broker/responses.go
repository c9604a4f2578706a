package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
)

// PushResponse appends a response envelope to the request's queue. Clients
// observe responses in push order.
func (c *Client) PushResponse(ctx context.Context, resp api.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("broker push response: %w", err)
	}
	if err := c.rdb.RPush(ctx, ResponseKey(resp.RequestID), payload).Err(); err != nil {
		return fmt.Errorf("broker push response: %w", err)
	}
	return nil
}

// PopResponses drains up to max responses from the request's queue,
// blocking up to timeout for the first one. An empty slice is a valid
// outcome; the client polls again.
func (c *Client) PopResponses(ctx context.Context, requestID uuid.UUID, max int, timeout time.Duration) ([]api.Response, error) {
	if max <= 0 {
		max = 64
	}
	key := ResponseKey(requestID)

	responses := make([]api.Response, 0, max)

	res, err := c.rdb.BLPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return responses, nil
		}
		return nil, fmt.Errorf("broker pop responses: %w", err)
	}
	first, err := decodeResponse(res[1])
	if err != nil {
		return nil, err
	}
	responses = append(responses, first)

	// drain whatever else is immediately available
	for len(responses) < max {
		payload, err := c.rdb.LPop(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				break
			}
			return nil, fmt.Errorf("broker pop responses: %w", err)
		}
		resp, err := decodeResponse(payload)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

func decodeResponse(payload string) (api.Response, error) {
	var resp api.Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return resp, fmt.Errorf("broker decode response: %w", err)
	}
	return resp, nil
}
