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

// WorkItem identifies one node of one request awaiting execution.
type WorkItem struct {
	RequestID uuid.UUID `json:"request_id"`
	NodeID    uuid.UUID `json:"node_id"`
}

// RunID returns the idempotence key for one activation of this item.
func (w WorkItem) RunID() string {
	return fmt.Sprintf("%s:%s", w.RequestID, w.NodeID)
}

// PushWork appends a work item to the executor queue.
func (c *Client) PushWork(ctx context.Context, item WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("broker push work: %w", err)
	}
	if err := c.rdb.RPush(ctx, ExecQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("broker push work: %w", err)
	}
	return nil
}

// PopWork blocks up to timeout for the next work item. The item moves to
// the processing list and is stamped with a claim of the given TTL; the
// caller must AckWork when done. If the claim expires first, RequeueStale
// hands the item to another worker. The second return is false when the
// timeout elapsed with nothing to do.
func (c *Client) PopWork(ctx context.Context, timeout, claimTTL time.Duration) (WorkItem, bool, error) {
	var item WorkItem
	payload, err := c.rdb.BLMove(ctx, ExecQueueKey, ExecProcessingKey, "LEFT", "RIGHT", timeout).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return item, false, nil
		}
		return item, false, fmt.Errorf("broker pop work: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return item, false, fmt.Errorf("broker pop work: %w", err)
	}
	if err := c.rdb.Set(ctx, WorkClaimKey(item.RunID()), "1", claimTTL).Err(); err != nil {
		return item, false, fmt.Errorf("broker pop work claim: %w", err)
	}
	return item, true, nil
}

// AckWork removes a finished item from the processing list and drops its
// claim.
func (c *Client) AckWork(ctx context.Context, item WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("broker ack work: %w", err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.LRem(ctx, ExecProcessingKey, 1, payload)
	pipe.Del(ctx, WorkClaimKey(item.RunID()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker ack work: %w", err)
	}
	return nil
}

// RequeueStale returns items whose worker claim expired (the worker died
// mid-run) from the processing list back onto the queue. Reports how many
// items moved.
func (c *Client) RequeueStale(ctx context.Context) (int, error) {
	payloads, err := c.rdb.LRange(ctx, ExecProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("broker requeue stale: %w", err)
	}

	moved := 0
	for _, payload := range payloads {
		var item WorkItem
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			continue
		}
		held, err := c.rdb.Exists(ctx, WorkClaimKey(item.RunID())).Result()
		if err != nil {
			return moved, fmt.Errorf("broker requeue stale: %w", err)
		}
		if held > 0 {
			continue
		}
		// claim gone but item still processing: the worker is dead
		removed, err := c.rdb.LRem(ctx, ExecProcessingKey, 1, payload).Result()
		if err != nil {
			return moved, fmt.Errorf("broker requeue stale: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := c.rdb.RPush(ctx, ExecQueueKey, payload).Err(); err != nil {
			return moved, fmt.Errorf("broker requeue stale: %w", err)
		}
		moved++
	}
	return moved, nil
}

// QueueLen returns the current executor queue depth.
func (c *Client) QueueLen(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, ExecQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("broker queue len: %w", err)
	}
	return n, nil
}

// DelayedItem is a work item with an activation time.
type DelayedItem struct {
	WorkItem
	NotBefore time.Time `json:"not_before"`
}

// ScheduleDelayed stores a work item in the delayed zset keyed by its
// activation time and wakes the scheduler.
func (c *Client) ScheduleDelayed(ctx context.Context, item WorkItem, notBefore time.Time) error {
	payload, err := json.Marshal(DelayedItem{WorkItem: item, NotBefore: notBefore})
	if err != nil {
		return fmt.Errorf("broker schedule delayed: %w", err)
	}
	member := goredis.Z{
		Score:  float64(notBefore.UnixMilli()),
		Member: payload,
	}
	if err := c.rdb.ZAdd(ctx, DelayedKey, member).Err(); err != nil {
		return fmt.Errorf("broker schedule delayed: %w", err)
	}
	// best effort: a sleeping scheduler re-checks on its own cadence anyway
	_ = c.Publish(ctx, WakeChannel, item.RunID())
	return nil
}

// PeekDelayed returns the earliest delayed item without removing it. The
// second return is false when the zset is empty.
func (c *Client) PeekDelayed(ctx context.Context) (DelayedItem, bool, error) {
	var item DelayedItem
	res, err := c.rdb.ZRangeWithScores(ctx, DelayedKey, 0, 0).Result()
	if err != nil {
		return item, false, fmt.Errorf("broker peek delayed: %w", err)
	}
	if len(res) == 0 {
		return item, false, nil
	}
	member, ok := res[0].Member.(string)
	if !ok {
		return item, false, fmt.Errorf("broker peek delayed: unexpected member type %T", res[0].Member)
	}
	if err := json.Unmarshal([]byte(member), &item); err != nil {
		return item, false, fmt.Errorf("broker peek delayed: %w", err)
	}
	return item, true, nil
}

// TakeDelayed removes a specific delayed item. Returns false if another
// consumer removed it first, which renders concurrent schedulers safe.
func (c *Client) TakeDelayed(ctx context.Context, item DelayedItem) (bool, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("broker take delayed: %w", err)
	}
	n, err := c.rdb.ZRem(ctx, DelayedKey, payload).Result()
	if err != nil {
		return false, fmt.Errorf("broker take delayed: %w", err)
	}
	return n > 0, nil
}

// WaitWake blocks until a wake-up is published, the given duration elapses,
// or ctx is done.
func (c *Client) WaitWake(ctx context.Context, sub *goredis.PubSub, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-sub.Channel():
	}
}
