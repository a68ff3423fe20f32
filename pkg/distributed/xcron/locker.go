package xcron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/xseckill/pkg/distributed/xdlock"
)

// LockHandle 一次成功的锁获取，每次 TryLock 独立。
type LockHandle interface {
	Unlock(ctx context.Context) error
	// Renew 延长租期，锁已丢失时返回 ErrLockNotHeld。
	Renew(ctx context.Context) error
}

// Locker 任务互斥锁。
//
// TryLock 必须非阻塞：锁被占用时返回 (nil, nil)，err 仅表示锁服务异常。
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// NoopLocker 单副本场景使用，总是获取成功。
func NoopLocker() Locker {
	return noopLocker{}
}

type noopLocker struct{}

func (noopLocker) TryLock(context.Context, string, time.Duration) (LockHandle, error) {
	return noopHandle{}, nil
}

type noopHandle struct{}

func (noopHandle) Unlock(context.Context) error { return nil }
func (noopHandle) Renew(context.Context) error  { return nil }

// XdlockLocker 基于 xdlock.Factory 的 Locker。
type XdlockLocker struct {
	factory   xdlock.Factory
	keyPrefix string
}

// NewXdlockLocker 创建 Locker，锁 key 为 prefix+任务名，默认前缀 "cron:"。
func NewXdlockLocker(factory xdlock.Factory, keyPrefix ...string) (*XdlockLocker, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	l := &XdlockLocker{factory: factory, keyPrefix: "cron:"}
	if len(keyPrefix) > 0 {
		l.keyPrefix = keyPrefix[0]
	}
	return l, nil
}

// TryLock 实现 Locker。
func (l *XdlockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	opts := []xdlock.MutexOption{xdlock.WithKeyPrefix(l.keyPrefix)}
	if ttl > 0 {
		opts = append(opts, xdlock.WithExpiry(ttl))
	}
	h, err := l.factory.TryLock(ctx, key, opts...)
	if err != nil {
		return nil, fmt.Errorf("xcron: try lock %s: %w", key, err)
	}
	if h == nil {
		return nil, nil
	}
	return &xdlockHandle{h: h}, nil
}

type xdlockHandle struct {
	h xdlock.LockHandle
}

func (h *xdlockHandle) Unlock(ctx context.Context) error {
	return h.h.Unlock(ctx)
}

func (h *xdlockHandle) Renew(ctx context.Context) error {
	if err := h.h.Extend(ctx); err != nil {
		if errors.Is(err, xdlock.ErrNotLocked) || errors.Is(err, xdlock.ErrExtendFailed) {
			return ErrLockNotHeld
		}
		return fmt.Errorf("xcron: renew: %w", err)
	}
	return nil
}

var (
	_ Locker = (*XdlockLocker)(nil)
	_ Locker = noopLocker{}
)
