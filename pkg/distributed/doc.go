// Package distributed 分布式协调相关的子包。
//
//   - xdlock: 基于 redsync 的 Redis 分布式锁，释放与续期校验持有者 token
//   - xcron: 定时任务，借助 xdlock 保证同一任务在集群内单实例执行
package distributed
