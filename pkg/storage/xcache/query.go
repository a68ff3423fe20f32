package xcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// LoaderFunc 按 id 回源。返回 (nil, nil) 表示数据不存在。
type LoaderFunc[T any, ID any] func(ctx context.Context, id ID) (*T, error)

// QueryWithMutex 互斥锁重建策略。
//
// 返回 (nil, nil) 表示数据不存在（含命中空值标记）。
// 回源错误原样返回，此时不写缓存。
func QueryWithMutex[T any, ID any](ctx context.Context, c *Client, keyPrefix, lockPrefix string,
	id ID, loader LoaderFunc[T, ID], ttl time.Duration) (*T, error) {
	if loader == nil {
		return nil, ErrNilLoader
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	suffix := fmt.Sprint(id)
	key := keyPrefix + suffix
	lockKey := lockPrefix + suffix

	// 快路径：命中直接返回，不进入 singleflight
	if v, hit, err := lookup[T](ctx, c, key); err != nil || hit {
		return v, err
	}

	ch := c.sf.DoChan(key, func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrLoadPanic, r)
			}
		}()
		// 共享执行不随单个调用方取消
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.LoadTimeout)
		defer cancel()
		return queryWithMutex(sctx, c, key, lockKey, id, loader, ttl)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v, _ := res.Val.(*T)
		return v, nil
	}
}

func queryWithMutex[T any, ID any](ctx context.Context, c *Client, key, lockKey string,
	id ID, loader LoaderFunc[T, ID], ttl time.Duration) (*T, error) {
	for attempt := 0; ; attempt++ {
		if v, hit, err := lookup[T](ctx, c, key); err != nil || hit {
			return v, err
		}

		unlock, err := c.lock(ctx, lockKey, c.opts.LockTTL)
		if errors.Is(err, ErrLockFailed) {
			if attempt >= c.opts.MaxLockRetries {
				return nil, fmt.Errorf("%w: %s after %d retries", ErrLockAcquisitionFailed, lockKey, attempt)
			}
			if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return rebuildLocked(ctx, c, key, lockKey, id, loader, ttl, unlock)
	}
}

func rebuildLocked[T any, ID any](ctx context.Context, c *Client, key, lockKey string,
	id ID, loader LoaderFunc[T, ID], ttl time.Duration, unlock Unlocker) (*T, error) {
	defer c.release(ctx, lockKey, unlock)

	// 双重检查：等锁期间可能已被其他实例重建
	if v, hit, err := lookup[T](ctx, c, key); err != nil || hit {
		return v, err
	}

	v, err := loader(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.setNull(ctx, key); err != nil {
			c.logger.Warn("xcache: write null marker failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, nil
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		c.logger.Warn("xcache: write cache failed", slog.String("key", key), slog.Any("error", err))
	}
	return v, nil
}

// lookup 读缓存。hit=true 时 v 为解码结果，命中空值标记时 v 为 nil。
func lookup[T any](ctx context.Context, c *Client, key string) (v *T, hit bool, err error) {
	raw, found, err := c.get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	if raw == emptyMarker {
		return nil, true, nil
	}
	v = new(T)
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrDecode, key, err)
	}
	return v, true, nil
}

// QueryWithLogicalExpiration 逻辑过期策略。
//
// 未命中返回 (nil, nil)，不回源。逻辑过期时最多一个请求投递后台重建，
// 所有请求立即返回旧值。重建失败只记录日志，旧值保持不变。
func QueryWithLogicalExpiration[T any, ID any](ctx context.Context, c *Client, keyPrefix, lockPrefix string,
	id ID, loader LoaderFunc[T, ID], ttl time.Duration) (*T, error) {
	if loader == nil {
		return nil, ErrNilLoader
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	suffix := fmt.Sprint(id)
	key := keyPrefix + suffix
	lockKey := lockPrefix + suffix

	entry, err := lookupLogical[T](ctx, c, key)
	if err != nil || entry == nil {
		return nil, err
	}
	if c.opts.Clock().Before(entry.ExpireTime) {
		return &entry.Data, nil
	}

	unlock, err := c.lock(ctx, lockKey, c.opts.LockTTL)
	if err != nil {
		if !errors.Is(err, ErrLockFailed) {
			c.logger.Warn("xcache: rebuild lock failed", slog.String("lock_key", lockKey), slog.Any("error", err))
		}
		return &entry.Data, nil
	}

	// 双重检查：可能刚被其他请求重建
	if fresh, err := lookupLogical[T](ctx, c, key); err == nil && fresh != nil &&
		c.opts.Clock().Before(fresh.ExpireTime) {
		c.release(ctx, lockKey, unlock)
		return &fresh.Data, nil
	}

	task := func() {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.LoadTimeout)
		defer cancel()
		defer c.release(bctx, lockKey, unlock)
		rebuildLogical(bctx, c, key, id, loader, ttl)
	}
	if err := c.pool.Submit(task); err != nil {
		c.release(ctx, lockKey, unlock)
		c.logger.Warn("xcache: rebuild dispatch failed", slog.String("key", key), slog.Any("error", err))
	}
	return &entry.Data, nil
}

func rebuildLogical[T any, ID any](ctx context.Context, c *Client, key string,
	id ID, loader LoaderFunc[T, ID], ttl time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("xcache: rebuild panicked", slog.String("key", key), slog.Any("panic", r))
		}
	}()

	v, err := loader(ctx, id)
	if err != nil {
		c.logger.Warn("xcache: rebuild load failed, keeping stale value",
			slog.String("key", key), slog.Any("error", err))
		return
	}
	if v == nil {
		c.logger.Warn("xcache: rebuild found no data, keeping stale value", slog.String("key", key))
		return
	}
	if err := c.SetWithLogicalExpiration(ctx, key, v, ttl); err != nil {
		c.logger.Warn("xcache: rebuild write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func lookupLogical[T any](ctx context.Context, c *Client, key string) (*LogicalEntry[T], error) {
	raw, found, err := c.get(ctx, key)
	if err != nil || !found || raw == emptyMarker {
		return nil, err
	}
	var entry LogicalEntry[T]
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, key, err)
	}
	return &entry, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
