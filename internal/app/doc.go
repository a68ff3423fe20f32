// Package app 按配置装配秒杀服务的全部组件。
//
// Build 建立 Redis、关系库连接并创建准入、履约 worker 与定时任务；
// Run 以 xrun 管理 worker、cron 与配置热重载直到 ctx 取消或收到信号；
// Close 按创建的逆序释放资源。
package app
