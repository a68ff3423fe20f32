package xcache

import "errors"

var (
	// ErrNilClient 客户端为 nil。
	ErrNilClient = errors.New("xcache: nil client")

	// ErrEmptyKey key 为空。
	ErrEmptyKey = errors.New("xcache: empty key")

	// ErrNilLoader 回源函数为 nil。
	ErrNilLoader = errors.New("xcache: nil loader function")

	// ErrInvalidConfig 配置参数无效。
	ErrInvalidConfig = errors.New("xcache: invalid configuration")

	// ErrClosed 客户端已关闭。
	ErrClosed = errors.New("xcache: closed")
)

var (
	// ErrLockFailed 锁被占用，本次未获取到。LockFunc 实现以此表示"未抢到"。
	ErrLockFailed = errors.New("xcache: failed to acquire lock")

	// ErrLockAcquisitionFailed 重试耗尽仍未获取到重建锁。
	ErrLockAcquisitionFailed = errors.New("xcache: lock acquisition retries exhausted")

	// ErrLockExpired 释放时锁已过期或被他人持有。
	ErrLockExpired = errors.New("xcache: lock expired or stolen")
)

var (
	// ErrRedisOperation Redis 读写失败。
	ErrRedisOperation = errors.New("xcache: redis operation failed")

	// ErrEncode 序列化失败。
	ErrEncode = errors.New("xcache: encode failed")

	// ErrDecode 反序列化失败。
	ErrDecode = errors.New("xcache: decode failed")

	// ErrLoadPanic 回源函数 panic。
	ErrLoadPanic = errors.New("xcache: load function panicked")

	// ErrMetricsDisabled ristretto 未开启 Metrics。
	ErrMetricsDisabled = errors.New("xcache: metrics disabled")
)
