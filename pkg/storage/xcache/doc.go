// Package xcache 提供基于 Redis 的通用旁路缓存客户端，以及基于 ristretto 的进程内缓存。
//
// # 缓存客户端
//
// [Client] 封装 Redis 读写，两种击穿防护策略以包级泛型函数提供：
//
//   - [QueryWithMutex]: 未命中时获取重建锁，双重检查后回源写缓存。
//     拿不到锁时按指数退避重试，次数有上限。回源结果为空时写入空值标记（短 TTL），防止穿透。
//     同进程内的并发请求先经过 singleflight 合并。
//   - [QueryWithLogicalExpiration]: 缓存不设 TTL，值外包一层逻辑过期时间。
//     逻辑过期后由抢到锁的请求把重建任务投递到工作池，所有请求都立即返回旧值，不阻塞。
//     未命中直接返回 nil，该策略要求预热。
//
// 两种策略的 key 均为 keyPrefix + id，锁 key 为 lockPrefix + id。
//
//	item, err := xcache.QueryWithMutex(ctx, client, "cache:voucher:", "lock:voucher:", id,
//	    func(ctx context.Context, id int64) (*Voucher, error) {
//	        return repo.FindVoucher(ctx, id)
//	    }, 30*time.Minute)
//
// # 重建锁
//
// 默认使用内置锁（SET NX + 比较删除脚本）。通过 [WithLocker] 可替换为 xdlock 等外部实现。
//
// # 进程内缓存
//
// [Memory] 是 ristretto 的薄封装，支持带 TTL 的字节值，适合短期标记类数据。
package xcache
