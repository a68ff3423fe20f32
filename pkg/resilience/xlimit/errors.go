package xlimit

import "errors"

var (
	// ErrNilClient Redis 客户端为 nil
	ErrNilClient = errors.New("xlimit: nil redis client")

	// ErrInvalidRule 规则参数无效
	ErrInvalidRule = errors.New("xlimit: invalid rule")

	// ErrEmptyKey 限流键为空
	ErrEmptyKey = errors.New("xlimit: empty key")

	// ErrRedisUnavailable Redis 不可用且降级策略为拒绝
	ErrRedisUnavailable = errors.New("xlimit: redis unavailable")

	// ErrRateLimited 请求被限流，供调用方包装使用
	ErrRateLimited = errors.New("xlimit: rate limited")
)
