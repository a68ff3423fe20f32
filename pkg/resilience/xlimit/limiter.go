package xlimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Result 一次限流检查的结果。
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	Key        string
	// Degraded 为 true 表示 Redis 故障，结果来自降级策略
	Degraded bool
}

// Limiter 单规则分布式限流器，并发安全。
type Limiter struct {
	limiter *redis_rate.Limiter
	rule    Rule
	limit   redis_rate.Limit
	opts    *options
}

// New 创建限流器。
func New(rdb redis.UniversalClient, rule Rule, opts ...Option) (*Limiter, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	burst := rule.Burst
	if burst == 0 {
		burst = rule.Rate
	}
	return &Limiter{
		limiter: redis_rate.NewLimiter(rdb),
		rule:    rule,
		limit:   redis_rate.Limit{Rate: rule.Rate, Burst: burst, Period: rule.Period},
		opts:    o,
	}, nil
}

// Rule 返回当前规则。
func (l *Limiter) Rule() Rule {
	return l.rule
}

// Allow 消耗一个令牌。
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN 消耗 n 个令牌。
//
// Redis 出错时：FallbackOpen 返回 Allowed=true 且 err 为 nil；
// FallbackClose 返回 Allowed=false 与 ErrRedisUnavailable。
func (l *Limiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	full := l.redisKey(key)
	res, err := l.limiter.AllowN(ctx, full, l.limit, n)
	if err != nil {
		return l.degrade(ctx, full, err)
	}
	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      l.limit.Burst,
		Remaining:  res.Remaining,
		RetryAfter: max(res.RetryAfter, 0),
		ResetAt:    time.Now().Add(res.ResetAfter),
		Key:        full,
	}, nil
}

// Reset 清空 key 的计数。
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return l.limiter.Reset(ctx, l.redisKey(key))
}

func (l *Limiter) redisKey(key string) string {
	return l.opts.keyPrefix + l.rule.Name + ":" + key
}

func (l *Limiter) degrade(ctx context.Context, key string, cause error) (*Result, error) {
	// 调用方取消不是 Redis 故障
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return nil, cause
	}
	l.opts.logger.WarnContext(ctx, "xlimit: redis error, falling back",
		slog.String("key", key),
		slog.String("strategy", string(l.opts.fallback)),
		slog.Any("error", cause),
	)
	if l.opts.fallback == FallbackOpen {
		return &Result{Allowed: true, Limit: l.limit.Burst, Key: key, Degraded: true}, nil
	}
	return &Result{Allowed: false, Limit: l.limit.Burst, Key: key, Degraded: true},
		fmt.Errorf("%w: %w", ErrRedisUnavailable, cause)
}
