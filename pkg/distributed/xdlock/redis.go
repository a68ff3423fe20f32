package xdlock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Redis 锁工厂
// =============================================================================

// RedisFactory 基于 redsync 的锁工厂。传入多个客户端时按 Redlock 多数派工作。
type RedisFactory struct {
	clients []redis.UniversalClient
	rs      *redsync.Redsync
	opts    *factoryOptions
	seq     atomic.Uint64
	closed  atomic.Bool
}

var _ Factory = (*RedisFactory)(nil)

// NewRedisFactory 创建锁工厂。
func NewRedisFactory(client redis.UniversalClient, opts ...FactoryOption) (*RedisFactory, error) {
	return NewRedlockFactory([]redis.UniversalClient{client}, opts...)
}

// NewRedlockFactory 使用多个独立 Redis 节点创建 Redlock 工厂。
func NewRedlockFactory(clients []redis.UniversalClient, opts ...FactoryOption) (*RedisFactory, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, client := range clients {
		if client == nil {
			return nil, fmt.Errorf("%w: client at index %d", ErrNilClient, i)
		}
		pools[i] = goredis.NewPool(client)
	}

	o := &factoryOptions{instanceID: uuid.NewString()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &RedisFactory{
		clients: clients,
		rs:      redsync.New(pools...),
		opts:    o,
	}, nil
}

// TryLock 实现 Factory。
func (f *RedisFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	if f.closed.Load() {
		return nil, ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	mutex, fullKey := f.newMutex(key, opts...)
	if err := mutex.TryLockContext(ctx); err != nil {
		err = wrapRedisError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, nil
		}
		// 部分节点失败时 redsync 只返回 ErrFailed，以 key 是否存在区分"被占用"与"故障"
		if errors.Is(err, ErrLockFailed) && f.exists(ctx, fullKey) {
			return nil, nil
		}
		return nil, err
	}
	return &redisLockHandle{factory: f, mutex: mutex, key: fullKey}, nil
}

// Lock 实现 Factory。
func (f *RedisFactory) Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	if f.closed.Load() {
		return nil, ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	mutex, fullKey := f.newMutex(key, opts...)
	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err = wrapRedisError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, fmt.Errorf("%w: %w", ErrLockFailed, err)
		}
		return nil, err
	}
	return &redisLockHandle{factory: f, mutex: mutex, key: fullKey}, nil
}

// Health 实现 Factory。
func (f *RedisFactory) Health(ctx context.Context) error {
	if f.closed.Load() {
		return ErrFactoryClosed
	}
	for _, client := range f.clients {
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close 实现 Factory。
func (f *RedisFactory) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *RedisFactory) newMutex(key string, opts ...MutexOption) (*redsync.Mutex, string) {
	o := defaultMutexOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	fullKey := o.KeyPrefix + key

	return f.rs.NewMutex(fullKey,
		redsync.WithExpiry(o.Expiry),
		redsync.WithTries(o.Tries),
		redsync.WithRetryDelay(o.RetryDelay),
		redsync.WithDriftFactor(o.DriftFactor),
		redsync.WithTimeoutFactor(o.TimeoutFactor),
		redsync.WithGenValueFunc(f.nextToken),
	), fullKey
}

// nextToken 生成本次获取专属的持有者 token。
func (f *RedisFactory) nextToken() (string, error) {
	if f.opts.nextSeq != nil {
		seq, err := f.opts.nextSeq()
		if err != nil {
			return "", fmt.Errorf("xdlock: generate token: %w", err)
		}
		return f.opts.instanceID + ":" + seq, nil
	}
	return f.opts.instanceID + ":" + strconv.FormatUint(f.seq.Add(1), 36), nil
}

func (f *RedisFactory) exists(ctx context.Context, key string) bool {
	for _, client := range f.clients {
		if n, err := client.Exists(ctx, key).Result(); err == nil && n > 0 {
			return true
		}
	}
	return false
}

// heldBy 判断 key 当前是否仍由 token 持有（任一节点命中即视为持有）。
func (f *RedisFactory) heldBy(ctx context.Context, key, token string) (bool, error) {
	var errs []error
	for _, client := range f.clients {
		v, err := client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if v == token {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

// =============================================================================
// 锁句柄
// =============================================================================

type redisLockHandle struct {
	factory *RedisFactory
	mutex   *redsync.Mutex
	key     string
}

func (h *redisLockHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if ok {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	// 比较删除未生效：确认锁是否已不属于本持有者
	held, checkErr := h.factory.heldBy(ctx, h.key, h.mutex.Value())
	if checkErr == nil && !held {
		h.factory.opts.logger.Debug("xdlock: unlock skipped, lock no longer held",
			slog.String("key", h.key),
			slog.String("token", h.mutex.Value()),
		)
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnlockFailed, errors.Join(wrapRedisError(err), checkErr))
}

func (h *redisLockHandle) Extend(ctx context.Context) error {
	ok, err := h.mutex.ExtendContext(ctx)
	if ok && err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	held, checkErr := h.factory.heldBy(ctx, h.key, h.mutex.Value())
	if checkErr == nil && !held {
		return ErrNotLocked
	}
	return fmt.Errorf("%w: %w", ErrExtendFailed, errors.Join(wrapRedisError(err), checkErr))
}

func (h *redisLockHandle) Key() string {
	return h.key
}

func (h *redisLockHandle) Token() string {
	return h.mutex.Value()
}

// wrapRedisError 将 redsync 错误映射为包级错误。
func wrapRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var errTaken *redsync.ErrTaken
	if errors.As(err, &errTaken) {
		return fmt.Errorf("%w: %w", ErrLockHeld, err)
	}
	if errors.Is(err, redsync.ErrFailed) {
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	}
	if errors.Is(err, redsync.ErrExtendFailed) {
		return fmt.Errorf("%w: %w", ErrExtendFailed, err)
	}
	if errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return fmt.Errorf("%w: %w", ErrLockExpired, err)
	}
	return err
}
