package xretry

import (
	"context"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// 类型别名，调用方无需直接依赖 retry-go。
type (
	// Option retry-go 配置选项
	Option = retry.Option

	// DelayTypeFunc 延迟计算函数
	DelayTypeFunc = retry.DelayTypeFunc

	// Error 多次尝试累积的错误列表
	Error = retry.Error
)

var (
	// Attempts 总尝试次数（含首次），0 表示无限。
	Attempts = retry.Attempts

	// Delay 基础重试间隔。
	Delay = retry.Delay

	// MaxDelay 重试间隔上限。
	MaxDelay = retry.MaxDelay

	// MaxJitter 随机抖动上限。
	MaxJitter = retry.MaxJitter

	// DelayType 延迟类型。
	DelayType = retry.DelayType

	// OnRetry 每次失败后的回调，attempt 从 0 开始。
	OnRetry = retry.OnRetry

	// RetryIf 覆盖默认重试判断。
	RetryIf = retry.RetryIf

	// LastErrorOnly 只返回最后一次的错误。
	LastErrorOnly = retry.LastErrorOnly

	BackOffDelay = retry.BackOffDelay
	FixedDelay   = retry.FixedDelay
	RandomDelay  = retry.RandomDelay
	CombineDelay = retry.CombineDelay

	// Unrecoverable 标记为不可恢复。
	Unrecoverable = retry.Unrecoverable

	// IsRecoverable 判断是否未被 Unrecoverable 标记。
	IsRecoverable = retry.IsRecoverable
)

// Do 执行 fn，失败按 opts 重试。
//
// 调用方传入 RetryIf 会覆盖默认判断，此时 PermanentError 与 Unrecoverable
// 需要自行处理。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	return retry.New(defaultOpts(ctx, opts)...).Do(fn)
}

// DoWithData 是 Do 的带返回值版本。
func DoWithData[T any](ctx context.Context, fn func() (T, error), opts ...Option) (T, error) {
	return retry.NewWithData[T](defaultOpts(ctx, opts)...).Do(fn)
}

func defaultOpts(ctx context.Context, opts []Option) []Option {
	all := make([]Option, 0, len(opts)+2)
	all = append(all, retry.Context(ctx))
	all = append(all, RetryIf(func(err error) bool {
		return IsRecoverable(err) && IsRetryable(err)
	}))
	return append(all, opts...)
}

// Policy 一组可复用的重试参数，通常来自配置。
type Policy struct {
	// Attempts 总尝试次数，<= 0 时按 1 处理
	Attempts int
	// Delay 首次重试前的等待
	Delay time.Duration
	// MaxDelay 指数退避上限，0 表示不封顶
	MaxDelay time.Duration
}

// Options 转换为 retry-go 选项：指数退避、只返回最后一个错误，再追加 extra。
func (p Policy) Options(extra ...Option) []Option {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	opts := []Option{
		Attempts(uint(attempts)),
		Delay(p.Delay),
		DelayType(BackOffDelay),
		LastErrorOnly(true),
	}
	if p.MaxDelay > 0 {
		opts = append(opts, MaxDelay(p.MaxDelay))
	}
	return append(opts, extra...)
}

// LogRetry 返回记录每次失败的 OnRetry 选项。logger 为 nil 时使用 slog.Default()。
func LogRetry(logger *slog.Logger, op string) Option {
	if logger == nil {
		logger = slog.Default()
	}
	return OnRetry(func(attempt uint, err error) {
		logger.Warn("xretry: attempt failed",
			slog.String("op", op),
			slog.Uint64("attempt", uint64(attempt)+1),
			slog.Any("error", err),
		)
	})
}
