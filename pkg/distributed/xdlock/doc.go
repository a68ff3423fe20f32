// Package xdlock 提供基于 Redis 的分布式锁，底层使用 go-redsync/redsync。
//
// # 语义
//
//   - TryLock: SET NX PX 写入本次获取专属的持有者 token，不重试。
//     锁被他人持有时返回 (nil, nil)。
//   - Lock: 按 WithTries/WithRetryDelay 重试直到获取或 ctx 取消。
//   - Unlock: 比较 token 后删除（单个 Lua 脚本）。锁已过期或已被他人重新获取时为空操作，返回 nil。
//   - Extend: 续期，锁已丢失时返回 ErrNotLocked。
//
// 持有者 token 由实例 ID（uuid，工厂级固定）与获取序号组成，格式为 "<instance>:<seq>"，
// 每次获取都会重新生成，便于从 Redis 中追溯持有进程。
//
// # 用法
//
//	factory, err := xdlock.NewRedisFactory(rdb)
//	if err != nil {
//	    return err
//	}
//	handle, err := factory.TryLock(ctx, "seckill-order:1001", xdlock.WithExpiry(10*time.Second))
//	if err != nil {
//	    return err
//	}
//	if handle == nil {
//	    // 锁被占用
//	    return nil
//	}
//	defer handle.Unlock(ctx)
package xdlock
