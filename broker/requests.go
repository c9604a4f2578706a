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

// ErrNoSuchRequest is returned when a request record is absent, either
// because the id is unknown or the record's TTL elapsed.
var ErrNoSuchRequest = errors.New("no such request")

const (
	requestRecordField      = "record"
	continuationFieldPfx    = "continuation:"
	maxOptimisticReattempts = 16
)

// SaveRequest stores a fresh request record with the given TTL.
func (c *Client) SaveRequest(ctx context.Context, req *api.Request, ttl time.Duration) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("broker save request: %w", err)
	}
	key := RequestKey(req.RequestID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, requestRecordField, payload)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker save request: %w", err)
	}
	return nil
}

// LoadRequest fetches a request record.
func (c *Client) LoadRequest(ctx context.Context, requestID uuid.UUID) (*api.Request, error) {
	payload, err := c.rdb.HGet(ctx, RequestKey(requestID), requestRecordField).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNoSuchRequest
		}
		return nil, fmt.Errorf("broker load request: %w", err)
	}
	var req api.Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("broker load request: %w", err)
	}
	return &req, nil
}

// RequestExists reports whether the request record is present.
func (c *Client) RequestExists(ctx context.Context, requestID uuid.UUID) (bool, error) {
	n, err := c.rdb.Exists(ctx, RequestKey(requestID)).Result()
	if err != nil {
		return false, fmt.Errorf("broker request exists: %w", err)
	}
	return n > 0, nil
}

// UpdateRequest applies fn to the request record under optimistic
// concurrency (WATCH/MULTI/EXEC), retrying on contention. fn runs on a fresh
// copy each attempt and must be side-effect free. Returns the updated
// record.
func (c *Client) UpdateRequest(ctx context.Context, requestID uuid.UUID, fn func(*api.Request) error) (*api.Request, error) {
	key := RequestKey(requestID)
	var updated *api.Request

	txn := func(tx *goredis.Tx) error {
		payload, err := tx.HGet(ctx, key, requestRecordField).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return ErrNoSuchRequest
			}
			return err
		}
		var req api.Request
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return err
		}
		if err := fn(&req); err != nil {
			return err
		}
		next, err := json.Marshal(&req)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, requestRecordField, next)
			return nil
		})
		if err == nil {
			updated = &req
		}
		return err
	}

	for attempt := 0; attempt < maxOptimisticReattempts; attempt++ {
		err := c.rdb.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNoSuchRequest) {
			return nil, ErrNoSuchRequest
		}
		return nil, fmt.Errorf("broker update request: %w", err)
	}
	return nil, fmt.Errorf("broker update request: contention on %s", key)
}

// DeleteRequest drops the request record and its response queue.
func (c *Client) DeleteRequest(ctx context.Context, requestID uuid.UUID) error {
	if err := c.rdb.Del(ctx, RequestKey(requestID), ResponseKey(requestID)).Err(); err != nil {
		return fmt.Errorf("broker delete request: %w", err)
	}
	return nil
}

// SetContinuation persists an adapter-owned opaque continuation blob for a
// node. The executor hands it back on the node's next activation.
func (c *Client) SetContinuation(ctx context.Context, requestID, nodeID uuid.UUID, blob []byte) error {
	field := continuationFieldPfx + nodeID.String()
	if err := c.rdb.HSet(ctx, RequestKey(requestID), field, blob).Err(); err != nil {
		return fmt.Errorf("broker set continuation: %w", err)
	}
	return nil
}

// Continuation fetches a node's continuation blob, if any.
func (c *Client) Continuation(ctx context.Context, requestID, nodeID uuid.UUID) ([]byte, bool, error) {
	field := continuationFieldPfx + nodeID.String()
	payload, err := c.rdb.HGet(ctx, RequestKey(requestID), field).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("broker continuation: %w", err)
	}
	return []byte(payload), true, nil
}

// ClearContinuation removes a node's continuation blob.
func (c *Client) ClearContinuation(ctx context.Context, requestID, nodeID uuid.UUID) error {
	field := continuationFieldPfx + nodeID.String()
	if err := c.rdb.HDel(ctx, RequestKey(requestID), field).Err(); err != nil {
		return fmt.Errorf("broker clear continuation: %w", err)
	}
	return nil
}

// SetMessage writes a mailbox value for AwaitMessage to pick up.
func (c *Client) SetMessage(ctx context.Context, requestID uuid.UUID, mailbox, message string) error {
	if err := c.rdb.Set(ctx, MailboxKey(requestID, mailbox), message, 0).Err(); err != nil {
		return fmt.Errorf("broker set message: %w", err)
	}
	return nil
}

// GetMessage reads a mailbox value. The second return is false when the
// mailbox is empty.
func (c *Client) GetMessage(ctx context.Context, requestID uuid.UUID, mailbox string) (string, bool, error) {
	msg, err := c.rdb.Get(ctx, MailboxKey(requestID, mailbox)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("broker get message: %w", err)
	}
	return msg, true, nil
}
