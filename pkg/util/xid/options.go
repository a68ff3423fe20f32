package xid

import "time"

// DefaultEpoch 是 RedisGenerator 的默认时间起点（2022-01-01T00:00:00Z）。
var DefaultEpoch = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	// DefaultKeyPrefix 计数器 key 前缀。
	DefaultKeyPrefix = "incr:"

	// DefaultCounterTTL 计数器 key 的过期时间。
	// 计数器按天分 key，保留两天足以覆盖跨零点的时钟偏差。
	DefaultCounterTTL = 48 * time.Hour

	dayLayout = "2006:01:02"
)

// =============================================================================
// Generator 选项
// =============================================================================

type options struct {
	machineID      func() (uint16, error)
	checkMachineID func(uint16) bool
}

// Option 配置 [Generator]。
type Option func(*options)

// WithMachineID 设置自定义机器 ID 函数，默认使用 [DefaultMachineID]。
func WithMachineID(fn func() (uint16, error)) Option {
	return func(o *options) {
		o.machineID = fn
	}
}

// WithCheckMachineID 设置机器 ID 校验函数，返回 false 时 NewGenerator 失败。
func WithCheckMachineID(fn func(uint16) bool) Option {
	return func(o *options) {
		o.checkMachineID = fn
	}
}

// =============================================================================
// RedisGenerator 选项
// =============================================================================

type redisOptions struct {
	epoch      time.Time
	keyPrefix  string
	counterTTL time.Duration
	now        func() time.Time
}

func defaultRedisOptions() *redisOptions {
	return &redisOptions{
		epoch:      DefaultEpoch,
		keyPrefix:  DefaultKeyPrefix,
		counterTTL: DefaultCounterTTL,
		now:        time.Now,
	}
}

// RedisOption 配置 [RedisGenerator]。
type RedisOption func(*redisOptions)

// WithEpoch 设置时间起点。零值忽略。
func WithEpoch(epoch time.Time) RedisOption {
	return func(o *redisOptions) {
		if !epoch.IsZero() {
			o.epoch = epoch
		}
	}
}

// WithKeyPrefix 设置计数器 key 前缀。
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		o.keyPrefix = prefix
	}
}

// WithCounterTTL 设置计数器过期时间，0 表示不过期。
func WithCounterTTL(ttl time.Duration) RedisOption {
	return func(o *redisOptions) {
		if ttl >= 0 {
			o.counterTTL = ttl
		}
	}
}

// WithClock 设置时钟函数，主要用于测试。
func WithClock(now func() time.Time) RedisOption {
	return func(o *redisOptions) {
		if now != nil {
			o.now = now
		}
	}
}
