// Package seckill 秒杀准入与异步履约。
//
// 准入（Admission）在 Redis 中用一段 Lua 脚本原子完成时间窗口、库存、一人一单校验，
// 成功后扣减 Redis 库存、记录用户并把下单意图写入 stream，立即返回预分配的订单号。
//
// 履约（Worker）以消费组方式读取 stream，按用户加分布式锁，在单个事务内
// 完成去重、条件扣减与插入，成功后 ACK。失败的消息留在 pending 列表，
// 由恢复流程与定时清扫（Sweep）重新处理；处理是幂等的。
package seckill
