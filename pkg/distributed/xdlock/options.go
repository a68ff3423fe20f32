package xdlock

import (
	"log/slog"
	"strings"
	"time"
)

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// =============================================================================
// 工厂选项
// =============================================================================

// FactoryOption 配置锁工厂。
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	instanceID string
	nextSeq    func() (string, error)
	logger     *slog.Logger
}

// WithInstanceID 设置 token 中的实例标识，默认随机 uuid。
func WithInstanceID(id string) FactoryOption {
	return func(o *factoryOptions) {
		if id != "" {
			o.instanceID = id
		}
	}
}

// WithSequence 设置 token 序号来源，例如 xid.Generator.NewString。
// 默认使用进程内自增计数器。
func WithSequence(fn func() (string, error)) FactoryOption {
	return func(o *factoryOptions) {
		if fn != nil {
			o.nextSeq = fn
		}
	}
}

// WithLogger 设置日志记录器，nil 表示不输出日志。
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(o *factoryOptions) {
		o.logger = logger
	}
}

// =============================================================================
// 锁选项
// =============================================================================

// MutexOption 配置单把锁。
type MutexOption func(*mutexOptions)

type mutexOptions struct {
	KeyPrefix     string
	Expiry        time.Duration
	Tries         int
	RetryDelay    time.Duration
	DriftFactor   float64
	TimeoutFactor float64
}

func defaultMutexOptions() *mutexOptions {
	return &mutexOptions{
		KeyPrefix:     "lock:",
		Expiry:        8 * time.Second,
		Tries:         32,
		RetryDelay:    200 * time.Millisecond,
		DriftFactor:   0.01,
		TimeoutFactor: 0.05,
	}
}

// WithKeyPrefix 设置 key 前缀，默认 "lock:"。
func WithKeyPrefix(prefix string) MutexOption {
	return func(o *mutexOptions) {
		o.KeyPrefix = prefix
	}
}

// WithExpiry 设置租期，默认 8s。
func WithExpiry(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d > 0 {
			o.Expiry = d
		}
	}
}

// WithTries 设置 Lock 的最大尝试次数，默认 32。TryLock 忽略该选项。
func WithTries(n int) MutexOption {
	return func(o *mutexOptions) {
		if n > 0 {
			o.Tries = n
		}
	}
}

// WithRetryDelay 设置 Lock 的重试间隔，默认 200ms。
func WithRetryDelay(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d > 0 {
			o.RetryDelay = d
		}
	}
}

// WithDriftFactor 设置时钟漂移因子，默认 0.01。
func WithDriftFactor(f float64) MutexOption {
	return func(o *mutexOptions) {
		if f > 0 {
			o.DriftFactor = f
		}
	}
}

// WithTimeoutFactor 设置单节点请求超时因子（相对 expiry），默认 0.05。
func WithTimeoutFactor(f float64) MutexOption {
	return func(o *mutexOptions) {
		if f > 0 {
			o.TimeoutFactor = f
		}
	}
}
