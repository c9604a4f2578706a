package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nimbusworks/dfm/broker"
	"github.com/nimbusworks/dfm/logger"
)

const (
	lruKey        = "cache:lru"
	sizesKey      = "cache:sizes"
	totalBytesKey = "cache:total_bytes"
)

// ErrIndexGap is returned when a Put would break the contiguous value
// numbering of a stream.
var ErrIndexGap = errors.New("cache: value index gap")

// Config bounds the cache.
type Config struct {
	// LockTTL is the builder lock auto-expiry. Must exceed the largest
	// expected adapter runtime so a crashed producer eventually unblocks
	// waiters.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// MaxBytes bounds the total size of sealed entries; 0 disables eviction.
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LockTTL <= 0 {
		c.LockTTL = 15 * time.Minute
	}
}

// Cache is the content-addressed store. All state lives in the broker;
// Cache itself is stateless and safe for concurrent use.
type Cache struct {
	client *broker.Client
	cfg    Config
	log    *logger.Logger
}

// New creates a cache over the given broker client.
func New(client *broker.Client, cfg Config, log *logger.Logger) *Cache {
	cfg.ApplyDefaults()
	return &Cache{
		client: client,
		cfg:    cfg,
		log:    log.WithComponent("cache"),
	}
}

// Get returns the sealed value stream for a fingerprint, or a miss. Partial
// (unsealed) streams read as absent.
func (c *Cache) Get(ctx context.Context, fingerprint string) ([]json.RawMessage, bool, error) {
	rdb := c.client.Unwrap()

	sealed, err := rdb.Get(ctx, broker.CacheSealKey(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get seal: %w", err)
	}

	raw, err := rdb.LRange(ctx, broker.CacheKey(fingerprint), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("cache get values: %w", err)
	}

	var count int
	if _, err := fmt.Sscanf(sealed, "%d", &count); err != nil || count != len(raw) {
		// a reader either sees a sealed complete stream or treats the state
		// as absent
		c.log.Warn("Sealed count mismatch, treating as miss", logger.Fields(
			"fingerprint", fingerprint, "sealed", sealed, "len", len(raw)))
		return nil, false, nil
	}

	values := make([]json.RawMessage, len(raw))
	for i, v := range raw {
		values[i] = json.RawMessage(v)
	}

	// touch for least-recently-read eviction
	now := float64(time.Now().UnixMilli())
	_ = rdb.ZAdd(ctx, lruKey, goredis.Z{Score: now, Member: fingerprint}).Err()

	return values, true, nil
}

// TryAcquireBuilder takes the builder lock for a fingerprint. At most one
// producer holds it; the lock auto-expires after LockTTL.
func (c *Cache) TryAcquireBuilder(ctx context.Context, fingerprint string) (bool, error) {
	return c.client.Claim(ctx, broker.CacheLockKey(fingerprint), c.cfg.LockTTL)
}

// ReleaseBuilder drops the builder lock.
func (c *Cache) ReleaseBuilder(ctx context.Context, fingerprint string) error {
	return c.client.Unwrap().Del(ctx, broker.CacheLockKey(fingerprint)).Err()
}

// BuilderHeld reports whether some producer currently holds the lock.
func (c *Cache) BuilderHeld(ctx context.Context, fingerprint string) (bool, error) {
	n, err := c.client.Unwrap().Exists(ctx, broker.CacheLockKey(fingerprint)).Result()
	if err != nil {
		return false, fmt.Errorf("cache builder held: %w", err)
	}
	return n > 0, nil
}

// Put appends one value at the given index. Indices must be contiguous
// starting from 0; anything else returns ErrIndexGap.
func (c *Cache) Put(ctx context.Context, fingerprint string, index int, value json.RawMessage) error {
	n, err := c.client.Unwrap().RPush(ctx, broker.CacheKey(fingerprint), []byte(value)).Result()
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	if n != int64(index)+1 {
		return fmt.Errorf("%w: put index %d landed at position %d", ErrIndexGap, index, n-1)
	}
	return nil
}

// Seal marks the stream complete with a single atomic write, records its
// size for eviction, notifies waiters, and releases the builder lock.
func (c *Cache) Seal(ctx context.Context, fingerprint string) error {
	rdb := c.client.Unwrap()
	key := broker.CacheKey(fingerprint)

	values, err := rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("cache seal: %w", err)
	}
	var size int64
	for _, v := range values {
		size += int64(len(v))
	}

	if err := rdb.Set(ctx, broker.CacheSealKey(fingerprint), len(values), 0).Err(); err != nil {
		return fmt.Errorf("cache seal: %w", err)
	}

	now := float64(time.Now().UnixMilli())
	pipe := rdb.TxPipeline()
	pipe.ZAdd(ctx, lruKey, goredis.Z{Score: now, Member: fingerprint})
	pipe.HSet(ctx, sizesKey, fingerprint, size)
	pipe.IncrBy(ctx, totalBytesKey, size)
	pipe.Del(ctx, broker.CacheLockKey(fingerprint))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache seal: %w", err)
	}

	_ = c.client.Publish(ctx, broker.SealedChannel, fingerprint)

	if c.cfg.MaxBytes > 0 {
		if err := c.evict(ctx); err != nil {
			c.log.Warn("Cache eviction failed", logger.ErrorFields("evict", err))
		}
	}
	return nil
}

// Invalidate drops a fingerprint's stream and bookkeeping.
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) error {
	rdb := c.client.Unwrap()

	size, err := rdb.HGet(ctx, sizesKey, fingerprint).Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("cache invalidate: %w", err)
	}

	pipe := rdb.TxPipeline()
	pipe.Del(ctx, broker.CacheKey(fingerprint), broker.CacheSealKey(fingerprint))
	pipe.ZRem(ctx, lruKey, fingerprint)
	pipe.HDel(ctx, sizesKey, fingerprint)
	if size > 0 {
		pipe.DecrBy(ctx, totalBytesKey, size)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// WaitSealed blocks until the fingerprint's stream is sealed, then returns
// it. Combines a pub/sub subscription with polling so a missed notification
// only costs one poll interval.
func (c *Cache) WaitSealed(ctx context.Context, fingerprint string, timeout time.Duration) ([]json.RawMessage, bool, error) {
	sub := c.client.Subscribe(ctx, broker.SealedChannel)
	defer sub.Close()

	deadline := time.Now().Add(timeout)
	for {
		values, hit, err := c.Get(ctx, fingerprint)
		if err != nil {
			return nil, false, err
		}
		if hit {
			return values, true, nil
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}

		timer := time.NewTimer(200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false, ctx.Err()
		case <-sub.Channel():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// TotalBytes returns the tracked size of all sealed entries.
func (c *Cache) TotalBytes(ctx context.Context) (int64, error) {
	n, err := c.client.Unwrap().Get(ctx, totalBytesKey).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache total bytes: %w", err)
	}
	return n, nil
}

// evict discards least-recently-read sealed entries until the byte budget
// holds. Unsealed entries never appear in the lru index.
func (c *Cache) evict(ctx context.Context) error {
	rdb := c.client.Unwrap()
	for {
		total, err := c.TotalBytes(ctx)
		if err != nil {
			return err
		}
		if total <= c.cfg.MaxBytes {
			return nil
		}

		oldest, err := rdb.ZRange(ctx, lruKey, 0, 0).Result()
		if err != nil {
			return err
		}
		if len(oldest) == 0 {
			return nil
		}
		fingerprint := oldest[0]
		c.log.Info("Evicting cache entry", logger.Fields(
			"fingerprint", fingerprint, "total_bytes", total))
		if err := c.Invalidate(ctx, fingerprint); err != nil {
			return err
		}
	}
}
