package xbreaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker 熔断器执行器。
type Breaker struct {
	name          string
	tripPolicy    TripPolicy
	isSuccessful  func(err error) bool
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	logger        *slog.Logger
	onStateChange func(name string, from, to State)

	cb *gobreaker.CircuitBreaker[any]
}

// BreakerOption 熔断器配置选项。
type BreakerOption func(*Breaker)

// WithTripPolicy 设置熔断判定策略，默认连续失败 5 次。
func WithTripPolicy(p TripPolicy) BreakerOption {
	return func(b *Breaker) {
		if p != nil {
			b.tripPolicy = p
		}
	}
}

// WithSuccessful 自定义成功判定。
//
// 业务错误（如重复下单）不代表下游故障，应判定为成功以免误熔断。
func WithSuccessful(fn func(err error) bool) BreakerOption {
	return func(b *Breaker) {
		b.isSuccessful = fn
	}
}

// WithTimeout Open 到 HalfOpen 的等待时间，默认 60 秒。
func WithTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInterval Closed 状态下清零计数的周期，默认 0（不清零）。
func WithInterval(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d >= 0 {
			b.interval = d
		}
	}
}

// WithMaxRequests HalfOpen 状态允许的探测请求数，默认 1。
func WithMaxRequests(n uint32) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}

// WithLogger 记录状态变化。
func WithLogger(logger *slog.Logger) BreakerOption {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithOnStateChange 状态变化回调，在日志之后调用。
func WithOnStateChange(f func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) {
		b.onStateChange = f
	}
}

// NewBreaker 创建熔断器。
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:        name,
		tripPolicy:  NewConsecutiveFailures(5),
		timeout:     60 * time.Second,
		maxRequests: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	st := gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.maxRequests,
		Interval:    b.interval,
		Timeout:     b.timeout,
		ReadyToTrip: b.tripPolicy.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("xbreaker: state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if b.onStateChange != nil {
				b.onStateChange(name, from, to)
			}
		},
	}
	if b.isSuccessful != nil {
		st.IsSuccessful = b.isSuccessful
	}
	b.cb = gobreaker.NewCircuitBreaker[any](st)
	return b
}

// Do 在熔断器保护下执行 fn。
//
// ctx 已结束时直接返回 ctx 错误，不计入统计。
// 熔断打开时 fn 不会执行，返回 *BreakerError。
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return wrapBreakerError(err, b.name)
}

// Execute 是 Do 的带返回值版本。
func Execute[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, wrapBreakerError(err, b.name)
	}
	typed, _ := result.(T)
	return typed, nil
}

// State 当前状态。
func (b *Breaker) State() State {
	return b.cb.State()
}

// Name 熔断器名称。
func (b *Breaker) Name() string {
	return b.name
}

// Counts 当前统计计数。
func (b *Breaker) Counts() Counts {
	return b.cb.Counts()
}
