// Package xid 提供秒杀链路使用的两类 ID 生成器。
//
// # RedisGenerator
//
// 订单号等全局递增 ID 由 [RedisGenerator] 生成，结构为：
//
//	(自 epoch 起的秒数 << 32) | 当日计数器
//
// 计数器存放在 Redis 中，key 为 incr:<tag>:<yyyy:MM:dd>，每天自动换新 key，
// 因此单日计数不会超过 32 位。同一秒同一 tag 的 ID 严格递增，跨秒顺序由时间前缀保证。
//
//	gen, err := xid.NewRedisGenerator(rdb)
//	if err != nil {
//	    return err
//	}
//	orderID, err := gen.NextID(ctx, "order")
//
// # Generator
//
// 进程内 ID 由 [Generator]（sony/sonyflake）生成，不依赖 Redis，
// 用于分布式锁持有者 token、消费者名称等只需进程级唯一的场景。
//
// 机器 ID 默认按 [DefaultMachineID] 的回退顺序获取：
//   - 环境变量 SECKILL_MACHINE_ID
//   - 主机名哈希
//   - 私有 IPv4 低 16 位
package xid
