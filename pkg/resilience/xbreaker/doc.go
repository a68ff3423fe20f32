// Package xbreaker 基于 [sony/gobreaker/v2] 的熔断器，保护订单落库链路。
//
// 数据库持续不可用时熔断打开，工作者直接跳过当前消息（不 ACK），
// 消息留在待处理列表，等熔断恢复后由待处理恢复流程重新处理。
//
// 熔断器错误包装为 BreakerError，Retryable() 返回 false，
// 与 xretry 组合时不会被重试。
//
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
package xbreaker
