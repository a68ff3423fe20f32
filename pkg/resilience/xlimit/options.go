package xlimit

import (
	"fmt"
	"log/slog"
	"time"
)

// Rule 令牌桶规则：每 Period 补充 Rate 个令牌，桶容量 Burst。
type Rule struct {
	Name   string        `koanf:"name"`
	Rate   int           `koanf:"rate"`
	Burst  int           `koanf:"burst"`
	Period time.Duration `koanf:"period"`
}

// Validate 校验规则参数。Burst 为 0 时按 Rate 处理。
func (r Rule) Validate() error {
	if r.Rate <= 0 {
		return fmt.Errorf("%w: rate must be positive, got %d", ErrInvalidRule, r.Rate)
	}
	if r.Burst < 0 {
		return fmt.Errorf("%w: burst must not be negative, got %d", ErrInvalidRule, r.Burst)
	}
	if r.Period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %v", ErrInvalidRule, r.Period)
	}
	return nil
}

// FallbackStrategy Redis 故障时的降级策略。
type FallbackStrategy string

const (
	// FallbackOpen 放行，优先可用性
	FallbackOpen FallbackStrategy = "open"
	// FallbackClose 拒绝，优先保护下游
	FallbackClose FallbackStrategy = "close"
)

const defaultKeyPrefix = "limit:"

type options struct {
	keyPrefix string
	fallback  FallbackStrategy
	logger    *slog.Logger
}

// Option 限流器配置选项。
type Option func(*options)

func defaultOptions() *options {
	return &options{
		keyPrefix: defaultKeyPrefix,
		fallback:  FallbackOpen,
		logger:    slog.Default(),
	}
}

// WithKeyPrefix 限流键前缀，默认 "limit:"。最终键为 prefix + rule.Name + ":" + key。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithFallback 设置降级策略，默认 FallbackOpen。
func WithFallback(s FallbackStrategy) Option {
	return func(o *options) {
		if s == FallbackOpen || s == FallbackClose {
			o.fallback = s
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
