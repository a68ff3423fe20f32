package xcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// 默认值
const (
	DefaultNullTTL        = 2 * time.Minute
	DefaultLockTTL        = 10 * time.Second
	DefaultMaxLockRetries = 20
	DefaultLoadTimeout    = 30 * time.Second
	DefaultRebuildWorkers = 10
	DefaultRebuildQueue   = 256

	defaultUnlockTimeout = 3 * time.Second
)

// Unlocker 释放锁。
type Unlocker func(ctx context.Context) error

// LockFunc 获取重建锁。锁被占用时返回 ErrLockFailed。
type LockFunc func(ctx context.Context, key string, ttl time.Duration) (Unlocker, error)

// Submitter 接收后台重建任务，xpool.WorkerPool[func()] 满足该接口。
type Submitter interface {
	Submit(task func()) error
}

// Options 缓存客户端配置。
type Options struct {
	// NullTTL 空值标记的 TTL，默认 2 分钟。
	NullTTL time.Duration

	// LockTTL 重建锁租期，默认 10s。
	LockTTL time.Duration

	// MaxLockRetries QueryWithMutex 抢锁失败后的最大重试次数，默认 20。
	MaxLockRetries int

	// RetryBaseDelay/RetryMaxDelay 抢锁重试的指数退避区间，默认 50ms/500ms。
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// LoadTimeout 单次回源超时，默认 30s。回源运行在脱离调用方取消链的 context 上。
	LoadTimeout time.Duration

	// Locker 重建锁实现，nil 使用内置锁。
	Locker LockFunc

	// RebuildPool 逻辑过期重建使用的工作池，nil 时客户端自建并在 Close 时停止。
	RebuildPool Submitter

	// RebuildWorkers 自建工作池的 worker 数，默认 10。
	RebuildWorkers int

	// Logger nil 表示不输出日志。
	Logger *slog.Logger

	// Clock 时钟，用于逻辑过期判断。
	Clock func() time.Time
}

// Option 配置缓存客户端。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		NullTTL:        DefaultNullTTL,
		LockTTL:        DefaultLockTTL,
		MaxLockRetries: DefaultMaxLockRetries,
		RetryBaseDelay: 50 * time.Millisecond,
		RetryMaxDelay:  500 * time.Millisecond,
		LoadTimeout:    DefaultLoadTimeout,
		RebuildWorkers: DefaultRebuildWorkers,
		Clock:          time.Now,
	}
}

func (o *Options) validate() error {
	switch {
	case o.NullTTL <= 0:
		return fmt.Errorf("%w: null TTL must be positive", ErrInvalidConfig)
	case o.LockTTL <= 0:
		return fmt.Errorf("%w: lock TTL must be positive", ErrInvalidConfig)
	case o.MaxLockRetries < 0:
		return fmt.Errorf("%w: max lock retries must be non-negative", ErrInvalidConfig)
	case o.RetryBaseDelay <= 0 || o.RetryMaxDelay < o.RetryBaseDelay:
		return fmt.Errorf("%w: invalid retry delay range", ErrInvalidConfig)
	case o.RebuildPool == nil && o.RebuildWorkers < 1:
		return fmt.Errorf("%w: rebuild workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithNullTTL 设置空值标记 TTL。
func WithNullTTL(ttl time.Duration) Option {
	return func(o *Options) { o.NullTTL = ttl }
}

// WithLockTTL 设置重建锁租期。
func WithLockTTL(ttl time.Duration) Option {
	return func(o *Options) { o.LockTTL = ttl }
}

// WithMaxLockRetries 设置抢锁重试上限。
func WithMaxLockRetries(n int) Option {
	return func(o *Options) { o.MaxLockRetries = n }
}

// WithRetryDelay 设置抢锁退避区间。
func WithRetryDelay(base, maxDelay time.Duration) Option {
	return func(o *Options) {
		o.RetryBaseDelay = base
		o.RetryMaxDelay = maxDelay
	}
}

// WithLoadTimeout 设置回源超时。
func WithLoadTimeout(d time.Duration) Option {
	return func(o *Options) { o.LoadTimeout = d }
}

// WithLocker 使用外部锁实现，例如 xdlock。
func WithLocker(fn LockFunc) Option {
	return func(o *Options) { o.Locker = fn }
}

// WithRebuildPool 注入后台重建工作池。
func WithRebuildPool(pool Submitter) Option {
	return func(o *Options) { o.RebuildPool = pool }
}

// WithRebuildWorkers 设置自建重建工作池大小。
func WithRebuildWorkers(n int) Option {
	return func(o *Options) { o.RebuildWorkers = n }
}

// WithLogger 设置日志记录器，nil 禁用日志。
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithClock 设置时钟，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	}
}
