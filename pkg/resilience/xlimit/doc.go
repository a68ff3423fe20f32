// Package xlimit 基于 [go-redis/redis_rate] 的分布式令牌桶限流。
//
// 秒杀入口按用户限流，多实例共享同一 Redis 配额。
// Redis 不可用时按 FallbackStrategy 降级：放行或拒绝。
//
//	l, _ := xlimit.New(rdb, xlimit.Rule{Name: "admission", Rate: 5, Burst: 5, Period: time.Second})
//	res, err := l.Allow(ctx, "user:42")
//	if err == nil && !res.Allowed {
//	    // 稍后重试：res.RetryAfter
//	}
//
// [go-redis/redis_rate]: https://github.com/go-redis/redis_rate
package xlimit
