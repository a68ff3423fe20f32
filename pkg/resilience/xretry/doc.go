// Package xretry 是对 [avast/retry-go/v5] 的薄包装，供订单落库链路上的
// 短暂失败重试使用（如 XACK、数据库事务提交）。
//
// 默认的重试判断：
//   - Unrecoverable / PermanentError 不重试
//   - context.Canceled / context.DeadlineExceeded 不重试
//   - 其余错误重试
//
// 简单用法：
//
//	err := xretry.Do(ctx, func() error {
//	    return rdb.XAck(ctx, stream, group, id).Err()
//	}, xretry.Attempts(3), xretry.Delay(20*time.Millisecond))
//
// 需要统一策略时使用 Policy：
//
//	p := xretry.Policy{Attempts: 3, Delay: 20 * time.Millisecond, MaxDelay: time.Second}
//	err := xretry.Do(ctx, fn, p.Options(xretry.LogRetry(logger, "xack"))...)
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
