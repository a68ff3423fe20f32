package xdlock

import "errors"

var (
	// ErrLockHeld 锁被其他持有者占用。TryLock 不返回该错误，而是返回 (nil, nil)。
	ErrLockHeld = errors.New("xdlock: lock is held by another owner")

	// ErrLockFailed 获取锁失败（Redis 错误或重试耗尽）。
	ErrLockFailed = errors.New("xdlock: failed to acquire lock")

	// ErrLockExpired 锁已过期或被他人获取。
	ErrLockExpired = errors.New("xdlock: lock expired or stolen")

	// ErrExtendFailed 续期失败。
	ErrExtendFailed = errors.New("xdlock: failed to extend lock")

	// ErrUnlockFailed 释放失败，锁仍由当前持有者持有。
	ErrUnlockFailed = errors.New("xdlock: failed to release lock")

	// ErrNotLocked 当前持有者已不再持有锁。
	ErrNotLocked = errors.New("xdlock: not locked")

	// ErrNilClient 客户端为 nil。
	ErrNilClient = errors.New("xdlock: client is nil")

	// ErrFactoryClosed 工厂已关闭。
	ErrFactoryClosed = errors.New("xdlock: factory is closed")

	// ErrEmptyKey key 为空。
	ErrEmptyKey = errors.New("xdlock: key must not be empty")
)
