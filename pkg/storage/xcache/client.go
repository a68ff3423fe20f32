package xcache

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xseckill/pkg/util/xpool"
)

// emptyMarker 空值标记，与"key 不存在"区分。
const emptyMarker = ""

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// LogicalEntry 逻辑过期缓存的包装结构。Redis 中不设置 TTL。
type LogicalEntry[T any] struct {
	Data       T         `json:"data"`
	ExpireTime time.Time `json:"expire_time"`
}

// Client 旁路缓存客户端，并发安全。
type Client struct {
	rdb    redis.UniversalClient
	opts   *Options
	logger *slog.Logger
	sf     singleflight.Group

	lock      LockFunc
	pool      Submitter
	ownedPool *xpool.WorkerPool[func()]
	closed    atomic.Bool
}

// NewClient 创建缓存客户端。
func NewClient(rdb redis.UniversalClient, opts ...Option) (*Client, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		rdb:    rdb,
		opts:   o,
		logger: logger,
		lock:   o.Locker,
		pool:   o.RebuildPool,
	}
	if c.lock == nil {
		c.lock = c.builtinLock
	}
	if c.pool == nil {
		pool, err := xpool.NewWorkerPool(o.RebuildWorkers, DefaultRebuildQueue,
			func(task func()) { task() },
			xpool.WithName("xcache-rebuild"),
			xpool.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		pool.Start()
		c.ownedPool = pool
		c.pool = pool
	}
	return c, nil
}

// Redis 返回底层客户端。
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// Close 停止自建的重建工作池并等待在途重建完成。不关闭 Redis 客户端。
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if c.ownedPool != nil {
		c.ownedPool.Stop()
	}
	return nil
}

// Set JSON 编码后写入，带 TTL。
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrRedisOperation, key, err)
	}
	return nil
}

// SetWithLogicalExpiration 写入逻辑过期包装，不设置 Redis TTL。
func (c *Client) SetWithLogicalExpiration(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.Set(ctx, key, LogicalEntry[any]{
		Data:       value,
		ExpireTime: c.opts.Clock().Add(ttl),
	}, 0)
}

// Delete 删除缓存，用于写后失效。
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: del: %w", ErrRedisOperation, err)
	}
	return nil
}

// get 读取原始值。found=false 表示 key 不存在。
func (c *Client) get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %w", ErrRedisOperation, key, err)
	}
	return v, true, nil
}

func (c *Client) setNull(ctx context.Context, key string) error {
	if err := c.rdb.Set(ctx, key, emptyMarker, c.opts.NullTTL).Err(); err != nil {
		return fmt.Errorf("%w: set null %s: %w", ErrRedisOperation, key, err)
	}
	return nil
}

// release 使用脱离调用方取消链的 context 释放锁，保证所有退出路径都能释放。
func (c *Client) release(ctx context.Context, lockKey string, unlock Unlocker) {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultUnlockTimeout)
	defer cancel()
	if err := unlock(uctx); err != nil && !errors.Is(err, ErrLockExpired) {
		c.logger.Warn("xcache: unlock failed",
			slog.String("lock_key", lockKey),
			slog.Any("error", err),
		)
	}
}

// backoff 返回第 attempt 次重试前的等待时间：指数增长、封顶并加 ±15% 抖动。
func (c *Client) backoff(attempt int) time.Duration {
	const maxShift = 30
	if attempt > maxShift {
		attempt = maxShift
	}
	d := c.opts.RetryBaseDelay << attempt
	if d <= 0 || d > c.opts.RetryMaxDelay {
		d = c.opts.RetryMaxDelay
	}
	jitter := time.Duration(float64(d) * 0.3 * (rand.Float64() - 0.5))
	return d + jitter
}

// =============================================================================
// 内置锁
// =============================================================================

func (c *Client) builtinLock(ctx context.Context, key string, ttl time.Duration) (Unlocker, error) {
	value := newLockValue()
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: setnx %s: %w", ErrRedisOperation, key, err)
	}
	if !ok {
		return nil, ErrLockFailed
	}
	return func(ctx context.Context) error {
		n, err := unlockScript.Run(ctx, c.rdb, []string{key}, value).Int64()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLockExpired
		}
		return nil
	}, nil
}

var lockValueCounter atomic.Uint64

func newLockValue() string {
	b := make([]byte, 16)
	if _, err := cryptorand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d-%d", time.Now().UnixNano(), lockValueCounter.Add(1))
	}
	return hex.EncodeToString(b)
}
