package xdlock

import "context"

// LockHandle 表示一次成功的锁获取。
type LockHandle interface {
	// Unlock 释放锁。仅当 Redis 中的值与本次 token 一致时删除；
	// 锁已过期或已被他人重新获取时为空操作，返回 nil。
	Unlock(ctx context.Context) error

	// Extend 将锁的租期重置为获取时的 expiry。锁已丢失时返回 ErrNotLocked。
	Extend(ctx context.Context) error

	// Key 返回带前缀的完整 key。
	Key() string

	// Token 返回本次获取写入的持有者 token。
	Token() string
}

// Factory 创建分布式锁。
type Factory interface {
	// TryLock 尝试获取锁，不重试。锁被占用时返回 (nil, nil)。
	TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error)

	// Lock 阻塞获取锁，直到成功、重试耗尽或 ctx 取消。
	Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error)

	// Health 检查所有 Redis 节点连通性。
	Health(ctx context.Context) error

	// Close 关闭工厂。不关闭外部传入的 Redis 客户端。
	Close() error
}
